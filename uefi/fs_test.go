// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"
	"unicode/utf16"

	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/uefitest"
)

var volume = fstest.MapFS{
	"loader/entries/arch.conf": {Data: []byte("title Arch Linux\nlinux /vmlinuz\n")},
	"loader/entries/old.conf":  {Data: []byte("title Old\n")},
	"vmlinuz":                  {Data: bytes.Repeat([]byte{0xaa}, 3*uefi.PageSize+7)},
	"EFI/Boot/bootx64.efi":     {Data: []byte("MZ\x90\x00")},
}

func openRoot(t *testing.T) (*uefitest.Firmware, *uefi.Services, uefi.Handle, *uefi.FS) {
	fw, s := open(t)
	h := fw.InstallFileSystem(volume)

	root, err := s.Root()

	if err != nil {
		t.Fatal(err)
	}

	return fw, s, h, root
}

func TestRoot(t *testing.T) {
	fw, s, h, root := openRoot(t)

	if root.Handle() != h {
		t.Fatalf("unexpected root handle %#x", root.Handle())
	}

	if fw.OpenCount(h, uefi.EFI_SIMPLE_FILE_SYSTEM_PROTOCOL_GUID) != 1 {
		t.Fatal("file system protocol should be open")
	}

	buf, err := fs.ReadFile(root, "vmlinuz")

	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(buf, volume["vmlinuz"].Data) {
		t.Fatalf("unexpected file contents (%d bytes)", len(buf))
	}

	info, err := fs.Stat(root, "loader/entries/arch.conf")

	if err != nil {
		t.Fatal(err)
	}

	if info.Name() != "arch.conf" || info.Size() != int64(len(volume["loader/entries/arch.conf"].Data)) || info.IsDir() {
		t.Fatalf("unexpected file info %s %d", info.Name(), info.Size())
	}

	if fw.OpenFiles(h) != 1 {
		t.Fatalf("files should be closed after use, %d open", fw.OpenFiles(h))
	}

	root.Close()

	if fw.OpenFiles(h) != 0 || fw.OpenCount(h, uefi.EFI_SIMPLE_FILE_SYSTEM_PROTOCOL_GUID) != 0 {
		t.Fatal("volume should be released")
	}

	if s.Directory.Outstanding() != 0 {
		t.Fatal("no protocol should be outstanding")
	}
}

func TestRootNotFound(t *testing.T) {
	_, s := open(t)

	if _, err := s.Root(); !errors.Is(err, uefi.ErrNotFound) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestReadDir(t *testing.T) {
	_, _, _, root := openRoot(t)
	defer root.Close()

	entries, err := fs.ReadDir(root, "loader/entries")

	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 2 || entries[0].Name() != "arch.conf" || entries[1].Name() != "old.conf" {
		t.Fatalf("unexpected entries %v", entries)
	}

	entries, err = fs.ReadDir(root, ".")

	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 3 || !entries[0].IsDir() || entries[0].Name() != "EFI" {
		t.Fatalf("unexpected entries %v", entries)
	}

	f, err := root.Open("loader")

	if err != nil {
		t.Fatal(err)
	}

	defer f.Close()

	d := f.(fs.ReadDirFile)

	if entries, err = d.ReadDir(1); err != nil || len(entries) != 1 || entries[0].Name() != "entries" {
		t.Fatalf("unexpected entries %v, %v", entries, err)
	}

	if _, err = d.ReadDir(1); err != io.EOF {
		t.Fatalf("unexpected error %v", err)
	}

	if _, err = f.Read(make([]byte, 8)); !errors.Is(err, fs.ErrInvalid) {
		t.Fatalf("directory read should fail, %v", err)
	}
}

func TestOpenInvalid(t *testing.T) {
	_, _, _, root := openRoot(t)
	defer root.Close()

	if _, err := root.Open("missing.conf"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("unexpected error %v", err)
	}

	if _, err := root.Open("../vmlinuz"); !errors.Is(err, fs.ErrInvalid) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestFileClosed(t *testing.T) {
	_, _, _, root := openRoot(t)

	f, err := root.Open("vmlinuz")

	if err != nil {
		t.Fatal(err)
	}

	if err = f.Close(); err != nil {
		t.Fatal(err)
	}

	if err = f.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err = f.Read(make([]byte, 8)); !errors.Is(err, fs.ErrClosed) {
		t.Fatalf("unexpected error %v", err)
	}

	root.Close()

	if _, err = root.Open("vmlinuz"); !errors.Is(err, fs.ErrClosed) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestFileAfterHandoff(t *testing.T) {
	fw, s, h, root := openRoot(t)

	f, err := root.Open("vmlinuz")

	if err != nil {
		t.Fatal(err)
	}

	if _, _, err = s.Handoff(); err != nil {
		t.Fatal(err)
	}

	if fw.OpenCount(h, uefi.EFI_SIMPLE_FILE_SYSTEM_PROTOCOL_GUID) != 0 {
		t.Fatal("file system protocol should be released before exit")
	}

	if _, err = f.Read(make([]byte, 8)); !errors.Is(err, uefi.ErrClosed) {
		t.Fatalf("unexpected error %v", err)
	}

	f.Close()
	root.Close()

	if fw.LateCalls() != 0 {
		t.Fatalf("unexpected late calls (%d)", fw.LateCalls())
	}
}

func TestFilePath(t *testing.T) {
	_, s, h, root := openRoot(t)
	defer root.Close()

	nodes, desc, err := s.Directory.DevicePath(h)

	if err != nil {
		t.Fatal(err)
	}

	if len(nodes) != 1 || nodes[0].Type != uefi.HardwareDevicePath || !bytes.Equal(nodes[0].Data, uefitest.VolumeVendor[:]) {
		t.Fatalf("unexpected nodes %+v", nodes)
	}

	if len(desc) != 24 {
		t.Fatalf("unexpected device path length (%d)", len(desc))
	}

	path, err := root.FilePath("EFI/Boot/bootx64.efi")

	if err != nil {
		t.Fatal(err)
	}

	var name []byte

	for _, c := range utf16.Encode([]rune(`\EFI\Boot\bootx64.efi` + "\x00")) {
		name = binary.LittleEndian.AppendUint16(name, c)
	}

	file := append([]byte{uefi.MediaDevicePath, uefi.FilePathSubType, 0, 0}, name...)
	binary.LittleEndian.PutUint16(file[2:], uint16(len(file)))

	exp := append(bytes.Clone(desc[:20]), file...)
	exp = append(exp, uefi.EndDevicePath, uefi.EndEntireSubType, 4, 0)

	if !bytes.Equal(path, exp) {
		t.Fatalf("unexpected file path\n%x\n%x", path, exp)
	}
}

func TestLoadImageFile(t *testing.T) {
	var started uefi.Handle

	fw, s, _, root := openRoot(t)
	defer root.Close()

	fw.StartImage = func(h uefi.Handle) uefi.Status {
		started = h
		return uefi.EFI_SUCCESS
	}

	if _, err := s.Boot.LoadImageFile(root, "vmlinuz"); err == nil {
		t.Fatal("invalid image should fail")
	}

	h, err := s.Boot.LoadImageFile(root, "EFI/Boot/bootx64.efi")

	if err != nil {
		t.Fatal(err)
	}

	if err = s.Boot.StartImage(h); err != nil {
		t.Fatal(err)
	}

	if started != h {
		t.Fatalf("unexpected started image %#x", started)
	}
}
