// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefitest

import (
	"encoding/binary"

	"github.com/usbarmory/go-uefi/uefi"
)

// EFI memory attributes
const (
	memoryWB      = 0x0000000000000008
	memoryRuntime = 0x8000000000000000
)

const (
	// DescriptorSize is the emulated memory descriptor size, larger than
	// the EFI_MEMORY_DESCRIPTOR structure as allowed by the specification.
	DescriptorSize = 48
	// DescriptorVersion is the emulated memory descriptor version.
	DescriptorVersion = 1

	// pool allocation header size
	poolHeader = 24
)

type region struct {
	t     uefi.MemoryType
	start uint64
	pages uint64
	attr  uint64
}

func (r *region) end() uint64 {
	return r.start + r.pages*uefi.PageSize
}

func (r *region) contains(start, pages uint64) bool {
	return start >= r.start && start+pages*uefi.PageSize <= r.end()
}

func validMemoryType(t uefi.MemoryType) bool {
	switch {
	case t == uefi.EfiConventionalMemory, t == uefi.EfiPersistentMemory:
		return false
	case t < uefi.EfiMaxMemoryType:
		return true
	case t >= 0x70000000:
		return true
	}

	return false
}

// MapKey returns the current memory map key.
func (f *Firmware) MapKey() uint64 {
	f.Lock()
	defer f.Unlock()

	return f.mapKey
}

// Descriptors returns the number of current memory map descriptors.
func (f *Firmware) Descriptors() int {
	f.Lock()
	defer f.Unlock()

	return len(f.regions)
}

// FreePages returns the number of pages of conventional memory.
func (f *Firmware) FreePages() (pages uint64) {
	f.Lock()
	defer f.Unlock()

	for _, r := range f.regions {
		if r.t == uefi.EfiConventionalMemory {
			pages += r.pages
		}
	}

	return
}

// Touch changes the memory map key, as firmware activity would do.
func (f *Firmware) Touch() {
	f.Lock()
	defer f.Unlock()

	f.mapKey++
}

// retype assigns memory type t to a range fully contained in a single region
// of type from.
func (f *Firmware) retype(start, pages uint64, from uefi.MemoryType, t uefi.MemoryType) bool {
	for i, r := range f.regions {
		if r.t != from || !r.contains(start, pages) {
			continue
		}

		var split []*region

		if start > r.start {
			split = append(split, &region{r.t, r.start, (start - r.start) / uefi.PageSize, r.attr})
		}

		split = append(split, &region{t, start, pages, r.attr})

		if end := start + pages*uefi.PageSize; end < r.end() {
			split = append(split, &region{r.t, end, (r.end() - end) / uefi.PageSize, r.attr})
		}

		f.regions = append(f.regions[:i], append(split, f.regions[i+1:]...)...)
		f.coalesce()
		f.mapKey++

		return true
	}

	return false
}

func (f *Firmware) coalesce() {
	var merged []*region

	for _, r := range f.regions {
		if n := len(merged); n > 0 {
			prev := merged[n-1]

			if prev.t == r.t && prev.attr == r.attr && prev.end() == r.start {
				prev.pages += r.pages
				continue
			}
		}

		merged = append(merged, &region{r.t, r.start, r.pages, r.attr})
	}

	f.regions = merged
}

// release returns an allocated range to conventional memory.
func (f *Firmware) release(start, pages uint64) bool {
	for _, r := range f.regions {
		if r.t != uefi.EfiConventionalMemory && r.contains(start, pages) {
			return f.retype(start, pages, r.t, uefi.EfiConventionalMemory)
		}
	}

	return false
}

// allocate carves pages from conventional memory, top-down below limit.
func (f *Firmware) allocate(t uefi.MemoryType, pages uint64, limit uint64) (addr uint64, status uefi.Status) {
	size := pages * uefi.PageSize

	for i := len(f.regions) - 1; i >= 0; i-- {
		r := f.regions[i]

		if r.t != uefi.EfiConventionalMemory {
			continue
		}

		end := r.end()

		if limit < end {
			end = (limit + 1) &^ (uefi.PageSize - 1)
		}

		if end <= r.start || end-r.start < size {
			continue
		}

		addr = end - size
		f.retype(addr, pages, uefi.EfiConventionalMemory, t)

		return addr, uefi.EFI_SUCCESS
	}

	return 0, uefi.EFI_OUT_OF_RESOURCES
}

func (b *bootServices) AllocatePages(t uefi.AllocateType, m uefi.MemoryType, pages uint64, addr *uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if addr == nil || pages == 0 || !validMemoryType(m) {
		return uefi.EFI_INVALID_PARAMETER
	}

	var start uint64
	var status uefi.Status

	switch t {
	case uefi.AllocateAnyPages:
		start, status = f.allocate(m, pages, ^uint64(0))
	case uefi.AllocateMaxAddress:
		start, status = f.allocate(m, pages, *addr)
	case uefi.AllocateAddress:
		if *addr%uefi.PageSize != 0 {
			return uefi.EFI_INVALID_PARAMETER
		}

		if !f.retype(*addr, pages, uefi.EfiConventionalMemory, m) {
			return uefi.EFI_NOT_FOUND
		}

		start = *addr
	default:
		return uefi.EFI_INVALID_PARAMETER
	}

	if status != uefi.EFI_SUCCESS {
		return status
	}

	f.spans[start] = pages
	*addr = start

	return uefi.EFI_SUCCESS
}

func (b *bootServices) FreePages(addr uint64, pages uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if addr%uefi.PageSize != 0 {
		return uefi.EFI_INVALID_PARAMETER
	}

	if n, ok := f.spans[addr]; !ok || n != pages {
		return uefi.EFI_NOT_FOUND
	}

	delete(f.spans, addr)
	f.release(addr, pages)

	return uefi.EFI_SUCCESS
}

func (b *bootServices) GetMemoryMap(size *uint64, buf []byte, key *uint64, descSize *uint64, descVersion *uint32) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if size == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	need := uint64(len(f.regions) * DescriptorSize)

	if descSize != nil {
		*descSize = DescriptorSize
	}

	if descVersion != nil {
		*descVersion = DescriptorVersion
	}

	if *size < need || uint64(len(buf)) < need {
		*size = need
		return uefi.EFI_BUFFER_TOO_SMALL
	}

	if key == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	clear(buf[:need])

	for i, r := range f.regions {
		d := buf[i*DescriptorSize:]

		binary.LittleEndian.PutUint32(d[0:], uint32(r.t))
		binary.LittleEndian.PutUint64(d[8:], r.start)
		binary.LittleEndian.PutUint64(d[16:], 0)
		binary.LittleEndian.PutUint64(d[24:], r.pages)
		binary.LittleEndian.PutUint64(d[32:], r.attr)
	}

	*size = need
	*key = f.mapKey

	return uefi.EFI_SUCCESS
}

func (b *bootServices) AllocatePool(m uefi.MemoryType, size uint64, addr *uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if addr == nil || !validMemoryType(m) {
		return uefi.EFI_INVALID_PARAMETER
	}

	pages := (size + poolHeader + uefi.PageSize - 1) / uefi.PageSize
	start, status := f.allocate(m, pages, ^uint64(0))

	if status != uefi.EFI_SUCCESS {
		return status
	}

	*addr = start + poolHeader
	f.pools[*addr] = pages

	clear(f.mem[*addr : *addr+size])

	return uefi.EFI_SUCCESS
}

func (b *bootServices) FreePool(addr uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	pages, ok := f.pools[addr]

	if !ok {
		return uefi.EFI_INVALID_PARAMETER
	}

	delete(f.pools, addr)
	f.release(addr-poolHeader, pages)

	return uefi.EFI_SUCCESS
}

// poolAlloc allocates pool memory on behalf of the firmware itself.
func (f *Firmware) poolAlloc(size uint64) (addr uint64, status uefi.Status) {
	pages := (size + poolHeader + uefi.PageSize - 1) / uefi.PageSize

	if addr, status = f.allocate(uefi.EfiBootServicesData, pages, ^uint64(0)); status != uefi.EFI_SUCCESS {
		return
	}

	addr += poolHeader
	f.pools[addr] = pages

	return
}

// Pools returns the number of outstanding pool allocations.
func (f *Firmware) Pools() int {
	f.Lock()
	defer f.Unlock()

	return len(f.pools)
}
