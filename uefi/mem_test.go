// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"errors"
	"testing"

	"github.com/u-root/u-root/pkg/boot/bzimage"

	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/uefitest"
)

func TestGetMemoryMap(t *testing.T) {
	fw, s := open(t)

	m, err := s.Boot.GetMemoryMap()

	if err != nil {
		t.Fatal(err)
	}

	if m.DescriptorSize != uefitest.DescriptorSize || m.DescriptorVersion != uefitest.DescriptorVersion {
		t.Fatalf("unexpected descriptor size %d/%d", m.DescriptorSize, m.DescriptorVersion)
	}

	if len(m.Descriptors) != fw.Descriptors() {
		t.Fatalf("unexpected descriptors %d", len(m.Descriptors))
	}

	if uint64(m.MapKey) != fw.MapKey() {
		t.Fatal("unexpected map key")
	}

	if m.Pages(uefi.EfiConventionalMemory) != fw.FreePages() {
		t.Fatal("unexpected conventional memory size")
	}

	for i := 1; i < len(m.Descriptors); i++ {
		if m.Descriptors[i].PhysicalStart != m.Descriptors[i-1].PhysicalEnd() {
			t.Fatalf("descriptor %d is not contiguous", i)
		}
	}

	if d := m.Find(fw.SystemTable); d == nil || d.Type != uefi.EfiBootServicesData {
		t.Fatalf("unexpected system table descriptor %+v", d)
	}
}

func TestAllocatePages(t *testing.T) {
	fw, s := open(t)

	free := fw.FreePages()
	key := fw.MapKey()

	addr, err := s.Boot.AllocatePages(uefi.Allocation{
		Type:       uefi.AllocateAnyPages,
		MemoryType: uefi.EfiLoaderData,
		Pages:      4,
	})

	if err != nil {
		t.Fatal(err)
	}

	if addr%uefi.PageSize != 0 {
		t.Fatalf("unaligned allocation %#x", addr)
	}

	if fw.FreePages() != free-4 || fw.MapKey() == key {
		t.Fatal("memory map should reflect the allocation")
	}

	m, err := s.Boot.GetMemoryMap()

	if err != nil {
		t.Fatal(err)
	}

	d := m.Find(addr)

	if d == nil || d.Type != uefi.EfiLoaderData || d.NumberOfPages < 4 {
		t.Fatalf("unexpected descriptor %+v", d)
	}

	if err = s.Boot.FreePages(addr, 4); err != nil {
		t.Fatal(err)
	}

	if fw.FreePages() != free {
		t.Fatal("pages should be released")
	}

	if m, err = s.Boot.GetMemoryMap(); err != nil {
		t.Fatal(err)
	}

	if d = m.Find(addr); d == nil || d.Type == uefi.EfiLoaderData {
		t.Fatalf("unexpected descriptor %+v after release", d)
	}

	if err = s.Boot.FreePages(addr, 4); !errors.Is(err, uefi.ErrFirmware) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestAllocateAddress(t *testing.T) {
	_, s := open(t)

	a := uefi.Allocation{
		Type:       uefi.AllocateAddress,
		MemoryType: uefi.EfiLoaderCode,
		Address:    0x200000,
		Pages:      uefi.Pages(8192 + 1),
	}

	addr, err := s.Boot.AllocatePages(a)

	if err != nil {
		t.Fatal(err)
	}

	if addr != a.Address || a.Pages != 3 {
		t.Fatalf("unexpected allocation %#x (%d)", addr, a.Pages)
	}

	// already allocated
	if _, err = s.Boot.AllocatePages(a); !errors.Is(err, uefi.ErrAllocationFailed) {
		t.Fatalf("unexpected error %v", err)
	}

	a.Type = uefi.AllocateMaxAddress
	a.Address = 0x1fffff
	a.Pages = 1

	if addr, err = s.Boot.AllocatePages(a); err != nil {
		t.Fatal(err)
	}

	if addr != 0x1ff000 {
		t.Fatalf("unexpected allocation %#x", addr)
	}
}

func TestAllocatePagesExhausted(t *testing.T) {
	fw, s := open(t)

	_, err := s.Boot.AllocatePages(uefi.Allocation{
		Type:       uefi.AllocateAnyPages,
		MemoryType: uefi.EfiLoaderData,
		Pages:      fw.FreePages() + 1,
	})

	if !errors.Is(err, uefi.ErrAllocationFailed) {
		t.Fatalf("unexpected error %v", err)
	}

	if status, _ := uefi.StatusOf(err); status != uefi.EFI_OUT_OF_RESOURCES {
		t.Fatalf("unexpected status %v", status)
	}
}

func TestE820(t *testing.T) {
	_, s := open(t)

	m, err := s.Boot.GetMemoryMap()

	if err != nil {
		t.Fatal(err)
	}

	e, err := m.E820()

	if err != nil {
		t.Fatal(err)
	}

	if len(e) != len(m.Descriptors) {
		t.Fatalf("unexpected entries %d", len(e))
	}

	for i, d := range m.Descriptors {
		expected := bzimage.RAM

		switch d.Type {
		case uefi.EfiReservedMemoryType, uefi.EfiRuntimeServicesData:
			expected = bzimage.Reserved
		case uefi.EfiACPIReclaimMemory:
			expected = bzimage.ACPI
		}

		if e[i].MemType != expected || e[i].Addr != d.PhysicalStart || e[i].Size != uint64(d.Size()) {
			t.Fatalf("unexpected entry %+v for %s", e[i], d.Type)
		}
	}
}

func TestAllocator(t *testing.T) {
	fw, s := open(t)

	pools := fw.Pools()

	buf, err := s.Allocator.Alloc(100, 64)

	if err != nil {
		t.Fatal(err)
	}

	if len(buf) != 100 {
		t.Fatalf("unexpected size %d", len(buf))
	}

	addr, ok := s.Allocator.Address(buf)

	if !ok || addr%64 != 0 {
		t.Fatalf("unexpected address %#x", addr)
	}

	// the buffer is backed by firmware memory
	buf[0] = 0xaa

	if b, _ := fw.Bytes(addr, 1); b[0] != 0xaa {
		t.Fatal("buffer not backed by firmware memory")
	}

	if fw.Pools() != pools+1 {
		t.Fatal("allocation should use pool memory")
	}

	if err = s.Allocator.Free(buf); err != nil {
		t.Fatal(err)
	}

	if fw.Pools() != pools {
		t.Fatal("allocation should be released")
	}

	if err = s.Allocator.Free(buf); err == nil {
		t.Fatal("double free should fail")
	}

	if _, err = s.Allocator.Alloc(16, 3); err == nil {
		t.Fatal("invalid alignment should fail")
	}

	if _, err = s.Allocator.Alloc(0, 8); err == nil {
		t.Fatal("invalid size should fail")
	}
}

func TestAllocatorExhausted(t *testing.T) {
	fw, s := open(t)

	_, err := s.Allocator.Alloc(int(fw.FreePages()+1)*uefi.PageSize, 8)

	if !errors.Is(err, uefi.ErrAllocationFailed) {
		t.Fatalf("unexpected error %v", err)
	}
}
