// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uapi

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
)

const entry = `# Boot Loader Specification type#1 entry
title      Fedora Linux
version    6.12.0
linux      /6.12.0/linux
initrd     \6.12.0\initrd.0
initrd     /6.12.0/initrd.1
options    root=/dev/vda1
options    console=ttyS0
`

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"loader/entries/fedora.conf": {Data: []byte(entry)},
		"6.12.0/linux":               {Data: []byte("kernel")},
		"6.12.0/initrd.0":            {Data: []byte("ab")},
		"6.12.0/initrd.1":            {Data: []byte("cd")},
	}
}

func TestLoadEntry(t *testing.T) {
	e, err := LoadEntry(testFS(), "/loader/entries/fedora.conf")

	if err != nil {
		t.Fatal(err)
	}

	if e.Title != "Fedora Linux" {
		t.Fatalf("unexpected title %q", e.Title)
	}

	if string(e.Linux) != "kernel" {
		t.Fatalf("unexpected kernel %q", e.Linux)
	}

	if string(e.Initrd) != "abcd" {
		t.Fatalf("unexpected initrd %q", e.Initrd)
	}

	if e.Options != "root=/dev/vda1 console=ttyS0" {
		t.Fatalf("unexpected options %q", e.Options)
	}

	if !strings.HasPrefix(e.Ignored(), "version") {
		t.Fatalf("unexpected ignored lines %q", e.Ignored())
	}

	if strings.Contains(e.String(), "#") {
		t.Fatal("comments should not be parsed")
	}
}

func TestLoadEntryMissingKernel(t *testing.T) {
	fsys := testFS()
	delete(fsys, "6.12.0/linux")

	if _, err := LoadEntry(fsys, "loader/entries/fedora.conf"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("unexpected error %v", err)
	}
}
