// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"io/fs"
	"runtime"
)

const EFI_LOADED_IMAGE_PROTOCOL_REVISION = 0x00001000

// LoadedImage represents an EFI Loaded Image Protocol instance.
type LoadedImage struct {
	Revision        uint32
	_               uint32
	ParentHandle    uint64
	SystemTable     uint64
	DeviceHandle    uint64
	FilePath        uint64
	_               uint64
	LoadOptionsSize uint32
	_               uint32
	LoadOptions     uint64
	ImageBase       uint64
	ImageSize       uint64
	ImageCodeType   MemoryType
	ImageDataType   MemoryType
	Unload          uint64
}

// GUID returns the EFI Loaded Image Protocol identifier.
func (*LoadedImage) GUID() GUID {
	return EFI_LOADED_IMAGE_PROTOCOL_GUID
}

// LoadedImage returns the EFI Loaded Image Protocol instance of the running
// image.
func (s *Services) LoadedImage() (image *LoadedImage, err error) {
	err = WithProtocol(s.Directory, s.imageHandle, OpenGetProtocol, func(p *Opened[LoadedImage]) error {
		image = p.Interface
		return nil
	})

	if err != nil {
		return nil, err
	}

	if image.Revision != EFI_LOADED_IMAGE_PROTOCOL_REVISION {
		return nil, errors.New("invalid protocol revision")
	}

	return
}

// LoadOptions returns the running image load options.
func (s *Services) LoadOptions() (options string, err error) {
	image, err := s.LoadedImage()

	if err != nil || image.LoadOptionsSize == 0 {
		return
	}

	return readString(s.fw, image.LoadOptions, int(image.LoadOptionsSize/2))
}

// LoadImage calls EFI_BOOT_SERVICES.LoadImage() on a memory buffer, with the
// running image as parent.
func (s *BootServices) LoadImage(buf []byte) (imageHandle Handle, err error) {
	const op = "EFI_BOOT_SERVICES.LoadImage"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	if len(buf) == 0 {
		return 0, statusError(op, EFI_INVALID_PARAMETER, nil)
	}

	status := b.LoadImage(false, s.state.image, 0, buf, &imageHandle)

	return imageHandle, parseStatus(op, status)
}

// LoadImageFile calls EFI_BOOT_SERVICES.LoadImage() on the named file read
// from the argument volume, with its full device path and the running image
// as parent.
func (s *BootServices) LoadImageFile(root *FS, name string) (imageHandle Handle, err error) {
	const op = "EFI_BOOT_SERVICES.LoadImage"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	devicePath, err := root.FilePath(name)

	if err != nil {
		return
	}

	buf, err := fs.ReadFile(root, name)

	if err != nil {
		return
	}

	if len(buf) == 0 {
		return 0, statusError(op, EFI_INVALID_PARAMETER, nil)
	}

	status := b.LoadImage(false, s.state.image, ptrval(devicePath), buf, &imageHandle)
	runtime.KeepAlive(devicePath)

	return imageHandle, parseStatus(op, status)
}

// StartImage calls EFI_BOOT_SERVICES.StartImage().
func (s *BootServices) StartImage(imageHandle Handle) (err error) {
	const op = "EFI_BOOT_SERVICES.StartImage"

	var size uint64
	var data uint64

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	return parseStatus(op, b.StartImage(imageHandle, &size, &data))
}

// UnloadImage calls EFI_BOOT_SERVICES.UnloadImage().
func (s *BootServices) UnloadImage(imageHandle Handle) (err error) {
	const op = "EFI_BOOT_SERVICES.UnloadImage"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	return parseStatus(op, b.UnloadImage(imageHandle))
}

// Exit calls EFI_BOOT_SERVICES.Exit() for the running image, which returns
// only on failure.
func (s *BootServices) Exit(code Status) (err error) {
	const op = "EFI_BOOT_SERVICES.Exit"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	return parseStatus(op, b.Exit(s.state.image, code, 0, 0))
}
