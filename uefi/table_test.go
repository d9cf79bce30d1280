// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/uefitest"
)

func open(t *testing.T) (*uefitest.Firmware, *uefi.Services) {
	t.Helper()

	fw := uefitest.New()
	s, err := fw.Open()

	if err != nil {
		t.Fatal(err)
	}

	return fw, s
}

func TestOpen(t *testing.T) {
	_, s := open(t)

	vendor, err := s.FirmwareVendor()

	if err != nil {
		t.Fatal(err)
	}

	if vendor != uefitest.Vendor {
		t.Fatalf("unexpected vendor %q", vendor)
	}

	if rev := s.SystemTable.Header.RevisionString(); rev != "2.7" {
		t.Fatalf("unexpected revision %s", rev)
	}

	if !s.Available() {
		t.Fatal("boot services should be available")
	}
}

func TestOpenNullTable(t *testing.T) {
	fw := uefitest.New()

	if _, err := uefi.Open(fw, fw.ImageHandle, 0); !errors.Is(err, uefi.ErrInvalidTable) {
		t.Fatalf("unexpected error %v", err)
	}

	if _, err := uefi.Open(nil, fw.ImageHandle, fw.SystemTable); !errors.Is(err, uefi.ErrInvalidTable) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestOpenChecksumMismatch(t *testing.T) {
	fw := uefitest.New()

	buf, err := fw.Bytes(fw.SystemTable, uefi.SystemTableSize)

	if err != nil {
		t.Fatal(err)
	}

	// firmware revision
	buf[32] ^= 0xff

	if _, err := fw.Open(); !errors.Is(err, uefi.ErrInvalidTable) {
		t.Fatalf("unexpected error %v", err)
	}

	fw.Seal(fw.SystemTable)

	if _, err := fw.Open(); err != nil {
		t.Fatal(err)
	}
}

func TestOpenInvalidBootServices(t *testing.T) {
	fw := uefitest.New()
	s, err := fw.Open()

	if err != nil {
		t.Fatal(err)
	}

	buf, err := fw.Bytes(s.SystemTable.BootServices, 8)

	if err != nil {
		t.Fatal(err)
	}

	binary.LittleEndian.PutUint64(buf, uefi.RuntimeServicesSignature)
	fw.Seal(s.SystemTable.BootServices)

	if _, err := fw.Open(); !errors.Is(err, uefi.ErrInvalidTable) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestOpenUnsupportedRevision(t *testing.T) {
	fw := uefitest.New()

	buf, err := fw.Bytes(fw.SystemTable, uefi.SystemTableSize)

	if err != nil {
		t.Fatal(err)
	}

	binary.LittleEndian.PutUint32(buf[8:], 1<<16|10)
	fw.Seal(fw.SystemTable)

	if _, err := fw.Open(); !errors.Is(err, uefi.ErrInvalidTable) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestValidateTableSize(t *testing.T) {
	fw := uefitest.New()

	if _, err := uefi.ValidateTable(fw, fw.SystemTable, uefi.SystemTableSignature, uefi.SystemTableSize+8); !errors.Is(err, uefi.ErrInvalidTable) {
		t.Fatalf("unexpected error %v", err)
	}

	h, err := uefi.ValidateTable(fw, fw.SystemTable, uefi.SystemTableSignature, uefi.SystemTableSize)

	if err != nil {
		t.Fatal(err)
	}

	if h.Revision != uefitest.Revision {
		t.Fatalf("unexpected revision %#x", h.Revision)
	}
}

func TestChecksum(t *testing.T) {
	buf := make([]byte, 24)
	sum := uefi.Checksum(buf)

	// the CRC32 field is excluded
	binary.LittleEndian.PutUint32(buf[16:], 0xdeadbeef)

	if uefi.Checksum(buf) != sum {
		t.Fatal("CRC32 field should be ignored")
	}

	if buf[16] != 0xef {
		t.Fatal("argument buffer should not be modified")
	}

	buf[0] = 1

	if uefi.Checksum(buf) == sum {
		t.Fatal("checksum should change")
	}
}
