// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"testing"

	"github.com/usbarmory/go-uefi/uefi"
)

func TestGUID(t *testing.T) {
	s := "5b1b31a1-9562-11d2-8e3f-00a0c969723b"
	g, err := uefi.ParseGUID(s)

	if err != nil {
		t.Fatal(err)
	}

	// native byte order
	if g[0] != 0xa1 || g[3] != 0x5b || g[4] != 0x62 || g[8] != 0x8e {
		t.Fatalf("unexpected layout % x", g[:])
	}

	if g.String() != s {
		t.Fatalf("unexpected string %s", g)
	}

	if g != uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID {
		t.Fatal("unexpected GUID")
	}

	if _, err := uefi.ParseGUID("5b1b31a1-9562-11d2-8e3f"); err == nil {
		t.Fatal("invalid GUID should not parse")
	}
}

func TestName(t *testing.T) {
	if n := uefi.Name(uefi.EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID); n != "EFI_GRAPHICS_OUTPUT_PROTOCOL" {
		t.Fatalf("unexpected name %s", n)
	}

	s := "01234567-89ab-cdef-0123-456789abcdef"

	if n := uefi.Name(uefi.MustParseGUID(s)); n != s {
		t.Fatalf("unexpected name %s", n)
	}
}

func TestGUIDText(t *testing.T) {
	var g uefi.GUID

	if err := g.UnmarshalText([]byte("8BE4DF61-93CA-11D2-AA0D-00E098032B8C")); err != nil {
		t.Fatal(err)
	}

	if g != uefi.EFI_GLOBAL_VARIABLE_GUID {
		t.Fatalf("unexpected GUID %s", g)
	}

	text, err := g.MarshalText()

	if err != nil {
		t.Fatal(err)
	}

	if string(text) != "8be4df61-93ca-11d2-aa0d-00e098032b8c" {
		t.Fatalf("unexpected text %s", text)
	}

	if err = g.UnmarshalText([]byte("8be4df61-93ca-11d2-aa0d-00e098032b8")); err == nil {
		t.Fatal("invalid GUID should not parse")
	}
}
