// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/usbarmory/go-uefi/uefi"
)

func TestStatus(t *testing.T) {
	if uefi.EFI_LOAD_ERROR != 1<<63|1 {
		t.Fatalf("unexpected EFI_LOAD_ERROR %#x", uint64(uefi.EFI_LOAD_ERROR))
	}

	if uefi.EFI_NOT_FOUND != 1<<63|14 {
		t.Fatalf("unexpected EFI_NOT_FOUND %#x", uint64(uefi.EFI_NOT_FOUND))
	}

	if uefi.EFI_HTTP_ERROR != 1<<63|35 {
		t.Fatalf("unexpected EFI_HTTP_ERROR %#x", uint64(uefi.EFI_HTTP_ERROR))
	}

	if !uefi.EFI_NOT_FOUND.IsError() || uefi.EFI_NOT_FOUND.IsWarning() {
		t.Fatal("EFI_NOT_FOUND should be an error")
	}

	if uefi.EFI_WARN_UNKNOWN_GLYPH.IsError() || !uefi.EFI_WARN_UNKNOWN_GLYPH.IsWarning() {
		t.Fatal("EFI_WARN_UNKNOWN_GLYPH should be a warning")
	}

	if uefi.EFI_SUCCESS.IsError() || uefi.EFI_SUCCESS.IsWarning() {
		t.Fatal("EFI_SUCCESS should be neither error nor warning")
	}

	if s := uefi.EFI_ACCESS_DENIED.String(); s != "EFI_ACCESS_DENIED" {
		t.Fatalf("unexpected name %s", s)
	}

	if s := uefi.Status(1<<63 | 0x1234).String(); s != "EFI_ERROR(0x1234)" {
		t.Fatalf("unexpected name %s", s)
	}
}

func TestStatusOf(t *testing.T) {
	_, s := open(t)

	_, err := s.Boot.AllocatePages(uefi.Allocation{
		Type:       uefi.AllocateAnyPages,
		MemoryType: uefi.EfiConventionalMemory,
		Pages:      1,
	})

	if err == nil {
		t.Fatal("allocating conventional memory should fail")
	}

	status, ok := uefi.StatusOf(err)

	if !ok || status != uefi.EFI_INVALID_PARAMETER {
		t.Fatalf("unexpected status %v", status)
	}

	if !errors.Is(err, uefi.ErrFirmware) {
		t.Fatalf("unexpected error class %v", err)
	}

	if !strings.HasPrefix(err.Error(), "EFI_BOOT_SERVICES.AllocatePages") {
		t.Fatalf("unexpected error string %s", err)
	}

	if _, ok := uefi.StatusOf(errors.New("other")); ok {
		t.Fatal("unexpected status")
	}
}
