// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefitest

import (
	"bytes"
	"encoding/binary"
	"slices"

	"github.com/usbarmory/go-uefi/uefi"
)

// PE/COFF image signature
var peSignature = []byte("MZ")

type image struct {
	started  bool
	exited   bool
	exitCode uefi.Status
}

// Image returns whether an image is loaded, its exit status and whether it
// has exited.
func (f *Firmware) Image(h uefi.Handle) (loaded bool, exited bool, code uefi.Status) {
	f.Lock()
	defer f.Unlock()

	if h == f.ImageHandle {
		return true, f.exitCode != nil, deref(f.exitCode)
	}

	img, ok := f.images[h]

	if !ok {
		return
	}

	return true, img.exited, img.exitCode
}

func deref(s *uefi.Status) uefi.Status {
	if s == nil {
		return 0
	}

	return *s
}

func (b *bootServices) LoadImage(bootPolicy bool, parent uefi.Handle, devicePath uint64, source []byte, h *uefi.Handle) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if h == nil || f.lookup(parent) == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	if len(source) == 0 {
		if devicePath == 0 {
			return uefi.EFI_INVALID_PARAMETER
		}

		return uefi.EFI_NOT_FOUND
	}

	if !bytes.HasPrefix(source, peSignature) {
		return uefi.EFI_LOAD_ERROR
	}

	base, status := f.poolAlloc(uint64(len(source)))

	if status != uefi.EFI_SUCCESS {
		return status
	}

	copy(f.mem[base:], source)

	li := &uefi.LoadedImage{
		Revision:      uefi.EFI_LOADED_IMAGE_PROTOCOL_REVISION,
		ParentHandle:  uint64(parent),
		SystemTable:   f.SystemTable,
		ImageBase:     base,
		ImageSize:     uint64(len(source)),
		ImageCodeType: uefi.EfiLoaderCode,
		ImageDataType: uefi.EfiLoaderData,
	}

	addr := f.alloc(binary.Size(li))
	f.write(addr, li)

	*h = f.install(0, uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID, addr)
	f.images[*h] = &image{}

	return uefi.EFI_SUCCESS
}

func (b *bootServices) StartImage(h uefi.Handle, exitDataSize *uint64, exitData *uint64) uefi.Status {
	f := b.f
	f.Lock()

	if f.bootCall() != nil {
		f.Unlock()
		return uefi.EFI_UNSUPPORTED
	}

	img, ok := f.images[h]

	if !ok || img.started {
		f.Unlock()
		return uefi.EFI_INVALID_PARAMETER
	}

	img.started = true
	entry := f.StartImage
	f.Unlock()

	status := uefi.EFI_SUCCESS

	if entry != nil {
		status = entry(h)
	}

	f.Lock()
	defer f.Unlock()

	if img.exited {
		status = img.exitCode
	}

	if exitDataSize != nil {
		*exitDataSize = 0
	}

	return status
}

func (b *bootServices) Exit(h uefi.Handle, status uefi.Status, exitDataSize uint64, exitData uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if h == f.ImageHandle {
		f.exitCode = &status
		return uefi.EFI_SUCCESS
	}

	img, ok := f.images[h]

	if !ok || !img.started {
		return uefi.EFI_INVALID_PARAMETER
	}

	img.exited = true
	img.exitCode = status

	return uefi.EFI_SUCCESS
}

func (b *bootServices) UnloadImage(h uefi.Handle) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if _, ok := f.images[h]; !ok {
		return uefi.EFI_INVALID_PARAMETER
	}

	delete(f.images, h)
	f.handles = slices.DeleteFunc(f.handles, func(e *handle) bool { return e.handle == h })

	return uefi.EFI_SUCCESS
}
