// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"fmt"

	"github.com/u-root/u-root/pkg/boot/bzimage"
)

const maxMemoryMapAttempts = 4

// Advanced Configuration and Power Interface Specification (ACPI)
// Version 6.0 - Table 15-312 Address Range Types12
const AddressRangePersistentMemory = 7

// PageSize represents the EFI page size in bytes
const PageSize = 4096 // 4 KiB

// MapKey represents the EFI Memory Map key, identifying a memory map
// snapshot.
type MapKey uint64

// MemoryDescriptor represents an EFI Memory Descriptor
type MemoryDescriptor struct {
	Type          MemoryType
	_             uint32
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// PhysicalEnd returns the descriptor physical end address.
func (d *MemoryDescriptor) PhysicalEnd() uint64 {
	return d.PhysicalStart + d.NumberOfPages*PageSize
}

// Size returns the descriptor size.
func (d *MemoryDescriptor) Size() int {
	return int(d.NumberOfPages * PageSize)
}

// E820 converts an EFI Memory Map entry to an x86 E820 one suitable for use
// after exiting EFI Boot Services.
func (d *MemoryDescriptor) E820() (bzimage.E820Entry, error) {
	e := bzimage.E820Entry{
		Addr: d.PhysicalStart,
		Size: d.NumberOfPages * PageSize,
	}

	// Unified Extensible Firmware Interface (UEFI) Specification
	// Version 2.10 - Table 7.10: Memory Type Usage after ExitBootServices()
	switch d.Type {
	case EfiLoaderCode, EfiLoaderData, EfiBootServicesCode, EfiBootServicesData, EfiConventionalMemory:
		e.MemType = bzimage.RAM
	case EfiPersistentMemory:
		e.MemType = AddressRangePersistentMemory
	case EfiACPIReclaimMemory:
		e.MemType = bzimage.ACPI
	case EfiACPIMemoryNVS:
		e.MemType = bzimage.NVS
	default:
		e.MemType = bzimage.Reserved
	}

	return e, nil
}

// MemoryMap represents an EFI Memory Map
type MemoryMap struct {
	MapSize           uint64
	Descriptors       []*MemoryDescriptor
	MapKey            MapKey
	DescriptorSize    uint64
	DescriptorVersion uint32
}

// E820 converts the EFI Memory Map to an x86 E820 one.
func (m *MemoryMap) E820() (e []bzimage.E820Entry, err error) {
	for _, desc := range m.Descriptors {
		entry, err := desc.E820()

		if err != nil {
			return nil, err
		}

		e = append(e, entry)
	}

	return
}

// Find returns the descriptor containing the argument address.
func (m *MemoryMap) Find(addr uint64) *MemoryDescriptor {
	for _, desc := range m.Descriptors {
		if addr >= desc.PhysicalStart && addr < desc.PhysicalEnd() {
			return desc
		}
	}

	return nil
}

// Pages returns the total number of pages of the argument memory type.
func (m *MemoryMap) Pages(t MemoryType) (n uint64) {
	for _, desc := range m.Descriptors {
		if desc.Type == t {
			n += desc.NumberOfPages
		}
	}

	return
}

func (m *MemoryMap) parse(buf []byte) (err error) {
	n := binary.Size(&MemoryDescriptor{})

	if m.DescriptorSize < uint64(n) {
		return fmt.Errorf("invalid descriptor size %d", m.DescriptorSize)
	}

	for i := 0; i+n <= len(buf); i += int(m.DescriptorSize) {
		d := &MemoryDescriptor{}

		if err = unmarshalBinary(buf[i:i+n], d); err != nil {
			return
		}

		m.Descriptors = append(m.Descriptors, d)
	}

	return
}

// GetMemoryMap calls EFI_BOOT_SERVICES.GetMemoryMap().
func (s *BootServices) GetMemoryMap() (m *MemoryMap, err error) {
	const op = "EFI_BOOT_SERVICES.GetMemoryMap"

	var buf []byte
	var key uint64
	var size uint64

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	m = &MemoryMap{}

	for i := 0; i < maxMemoryMapAttempts; i++ {
		status := b.GetMemoryMap(&size, buf, &key, &m.DescriptorSize, &m.DescriptorVersion)

		if status == EFI_BUFFER_TOO_SMALL {
			// leave room for a map change in between calls
			size += 2 * max(m.DescriptorSize, uint64(binary.Size(&MemoryDescriptor{})))
			buf = make([]byte, size)
			continue
		}

		if err = parseStatus(op, status); err != nil {
			return nil, err
		}

		m.MapSize = size
		m.MapKey = MapKey(key)

		if err = m.parse(buf[:size]); err != nil {
			return nil, err
		}

		return
	}

	return nil, statusError(op, EFI_BUFFER_TOO_SMALL, ErrFirmware)
}
