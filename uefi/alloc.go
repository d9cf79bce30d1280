// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// poolAlignment is the alignment guaranteed by EFI_BOOT_SERVICES.AllocatePool()
const poolAlignment = 8

// Allocator routes memory allocations to EFI Boot Services pool memory.
//
// It is only available through a [Services] instance and its allocations
// fail with [ErrServicesUnavailable] once Boot Services are exited.
type Allocator struct {
	sync.Mutex

	// MemoryType is the memory type of pool allocations
	MemoryType MemoryType

	boot *BootServices

	// pool allocations indexed by returned buffer
	pool map[uintptr]*allocation
}

type allocation struct {
	base uint64
	addr uint64
}

func bufferKey(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

// Alloc allocates size bytes of pool memory aligned to align, which must be a
// power of two.
func (a *Allocator) Alloc(size int, align int) (buf []byte, err error) {
	if size <= 0 {
		return nil, errors.New("invalid size")
	}

	if align <= 0 || align&(align-1) != 0 {
		return nil, fmt.Errorf("invalid alignment %d", align)
	}

	n := size

	if align > poolAlignment {
		n += align - 1
	}

	base, err := a.boot.AllocatePool(a.MemoryType, n)

	if err != nil {
		return
	}

	addr := base

	if r := addr & uint64(align-1); r != 0 {
		addr += uint64(align) - r
	}

	if buf, err = a.boot.fw.Bytes(addr, size); err != nil {
		a.boot.FreePool(base)
		return nil, err
	}

	a.Lock()
	defer a.Unlock()

	if a.pool == nil {
		a.pool = make(map[uintptr]*allocation)
	}

	a.pool[bufferKey(buf)] = &allocation{
		base: base,
		addr: addr,
	}

	return
}

// Address returns the firmware address of a buffer returned by
// [Allocator.Alloc].
func (a *Allocator) Address(buf []byte) (addr uint64, ok bool) {
	a.Lock()
	defer a.Unlock()

	if p, ok := a.pool[bufferKey(buf)]; ok {
		return p.addr, true
	}

	return
}

// Free releases a buffer returned by [Allocator.Alloc].
func (a *Allocator) Free(buf []byte) (err error) {
	a.Lock()
	p, ok := a.pool[bufferKey(buf)]
	delete(a.pool, bufferKey(buf))
	a.Unlock()

	if !ok {
		return errors.New("invalid buffer")
	}

	return a.boot.FreePool(p.base)
}
