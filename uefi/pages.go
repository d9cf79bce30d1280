// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

// AllocateType represents an EFI_ALLOCATE_TYPE.
type AllocateType uint32

// EFI_ALLOCATE_TYPE
const (
	AllocateAnyPages AllocateType = iota
	AllocateMaxAddress
	AllocateAddress
	MaxAllocateType
)

// MemoryType represents an EFI_MEMORY_TYPE.
type MemoryType uint32

// EFI_MEMORY_TYPE
const (
	EfiReservedMemoryType MemoryType = iota
	EfiLoaderCode
	EfiLoaderData
	EfiBootServicesCode
	EfiBootServicesData
	EfiRuntimeServicesCode
	EfiRuntimeServicesData
	EfiConventionalMemory
	EfiUnusableMemory
	EfiACPIReclaimMemory
	EfiACPIMemoryNVS
	EfiMemoryMappedIO
	EfiMemoryMappedIOPortSpace
	EfiPalCode
	EfiPersistentMemory
	EfiUnacceptedMemoryType
	EfiMaxMemoryType
)

var memoryTypeNames = []string{
	"Reserved",
	"LoaderCode",
	"LoaderData",
	"BootServicesCode",
	"BootServicesData",
	"RuntimeServicesCode",
	"RuntimeServicesData",
	"Conventional",
	"Unusable",
	"ACPIReclaim",
	"ACPIMemoryNVS",
	"MemoryMappedIO",
	"MemoryMappedIOPortSpace",
	"PalCode",
	"Persistent",
	"Unaccepted",
}

func (t MemoryType) String() string {
	if int(t) < len(memoryTypeNames) {
		return memoryTypeNames[t]
	}

	return "OEM/OS"
}

// Allocation represents an EFI_BOOT_SERVICES.AllocatePages() request.
type Allocation struct {
	// Type is the allocation strategy
	Type AllocateType
	// MemoryType is the memory type of the allocated pages
	MemoryType MemoryType
	// Address is the exact (AllocateAddress) or maximum
	// (AllocateMaxAddress) address, ignored otherwise
	Address uint64
	// Pages is the number of contiguous 4 KiB pages
	Pages uint64
}

// Pages returns the number of pages required to hold size bytes.
func Pages(size int) uint64 {
	return (uint64(size) + PageSize - 1) / PageSize
}

// AllocatePages calls EFI_BOOT_SERVICES.AllocatePages().
func (s *BootServices) AllocatePages(a Allocation) (addr uint64, err error) {
	const op = "EFI_BOOT_SERVICES.AllocatePages"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	addr = a.Address
	status := b.AllocatePages(a.Type, a.MemoryType, a.Pages, &addr)

	switch status {
	case EFI_OUT_OF_RESOURCES, EFI_NOT_FOUND:
		return 0, statusError(op, status, ErrAllocationFailed)
	}

	if err = parseStatus(op, status); err != nil {
		return 0, err
	}

	return
}

// FreePages calls EFI_BOOT_SERVICES.FreePages().
func (s *BootServices) FreePages(addr uint64, pages uint64) (err error) {
	const op = "EFI_BOOT_SERVICES.FreePages"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	status := b.FreePages(addr, pages)

	if status == EFI_NOT_FOUND {
		return statusError(op, status, ErrFirmware)
	}

	return parseStatus(op, status)
}

// AllocatePool calls EFI_BOOT_SERVICES.AllocatePool().
func (s *BootServices) AllocatePool(memoryType MemoryType, size int) (addr uint64, err error) {
	const op = "EFI_BOOT_SERVICES.AllocatePool"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	status := b.AllocatePool(memoryType, uint64(size), &addr)

	if status == EFI_OUT_OF_RESOURCES {
		return 0, statusError(op, status, ErrAllocationFailed)
	}

	if err = parseStatus(op, status); err != nil {
		return 0, err
	}

	return
}

// FreePool calls EFI_BOOT_SERVICES.FreePool().
func (s *BootServices) FreePool(addr uint64) (err error) {
	const op = "EFI_BOOT_SERVICES.FreePool"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	return parseStatus(op, b.FreePool(addr))
}
