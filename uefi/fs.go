// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"
)

const EFI_SIMPLE_FILE_SYSTEM_PROTOCOL_REVISION = 0x00010000

// EFI Simple File System Protocol offsets
const openVolume = 0x08

// SimpleFileSystemProtocol represents the EFI Simple File System Protocol
// layout.
type SimpleFileSystemProtocol struct {
	Revision   uint64
	OpenVolume uint64
}

// GUID returns the EFI Simple File System Protocol identifier.
func (*SimpleFileSystemProtocol) GUID() GUID {
	return EFI_SIMPLE_FILE_SYSTEM_PROTOCOL_GUID
}

// FS implements the [fs.FS] interface, read-only, over an opened EFI Simple
// File System Protocol instance.
//
// The instance must be released with [FS.Close], files opened from it are no
// longer usable afterwards.
type FS struct {
	*Opened[SimpleFileSystemProtocol]

	volume *File
}

// FileSystem opens the EFI Simple File System Protocol on the argument handle
// and its root volume.
func (d *Directory) FileSystem(h Handle) (root *FS, err error) {
	p, err := OpenProtocol[SimpleFileSystemProtocol](d, h, OpenByHandleProtocol)

	if err != nil {
		return
	}

	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	if p.Interface.Revision != EFI_SIMPLE_FILE_SYSTEM_PROTOCOL_REVISION {
		return nil, fmt.Errorf("invalid protocol revision (%#x)", p.Interface.Revision)
	}

	addr := []uint64{0}

	status, err := p.Call(openVolume, p.Address(), ptrval(addr))

	if err != nil {
		return
	}

	if err = parseStatus("EFI_SIMPLE_FILE_SYSTEM_PROTOCOL.OpenVolume", status); err != nil {
		return
	}

	root = &FS{Opened: p}

	if root.volume, err = root.file(".", addr[0]); err != nil {
		return nil, err
	}

	return
}

// Root opens the EFI Simple File System Protocol of the device the running
// image was loaded from.
func (s *Services) Root() (root *FS, err error) {
	image, err := s.LoadedImage()

	if err != nil {
		return
	}

	if image.DeviceHandle == 0 {
		return nil, fmt.Errorf("image device, %w", ErrNotFound)
	}

	return s.Directory.FileSystem(Handle(image.DeviceHandle))
}

// Close releases the root volume and the EFI Simple File System Protocol.
func (root *FS) Close() {
	if root.volume != nil {
		root.volume.Close()
	}

	root.Opened.Close()
}

// filePath converts a file system path to an EFI file path, relative to the
// volume root.
func filePath(name string) string {
	if name == "." {
		return `\`
	}

	return `\` + strings.ReplaceAll(name, "/", `\`)
}

// Open opens the named file for reading, [File.Close] must be called to
// release its resources.
func (root *FS) Open(name string) (fs.File, error) {
	f, err := root.open(name)

	if err != nil {
		return nil, err
	}

	return f, nil
}

func (root *FS) open(name string) (f *File, err error) {
	const op = "EFI_FILE_PROTOCOL.Open"

	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	if root.volume == nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrClosed}
	}

	addr := []uint64{0}
	path := toUTF16(filePath(name))

	status, err := root.volume.call(fileOpen, ptrval(addr), ptrval(path), EFI_FILE_MODE_READ, 0)
	runtime.KeepAlive(path)

	if err == nil {
		err = parseStatus(op, status)
	}

	if errors.Is(err, ErrNotFound) {
		err = fs.ErrNotExist
	}

	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	if f, err = root.file(name, addr[0]); err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	if f.info, err = f.getInfo(); err != nil {
		f.Close()
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}

	return
}

// file returns an EFI File Protocol instance opened at addr.
func (root *FS) file(name string, addr uint64) (f *File, err error) {
	var revision uint64

	f = &File{
		root: root,
		name: name,
		addr: addr,
	}

	if err = decode(root.dir.fw, &revision, addr); err != nil {
		return nil, err
	}

	if revision != EFI_FILE_PROTOCOL_REVISION && revision != EFI_FILE_PROTOCOL_REVISION2 {
		f.Close()
		return nil, fmt.Errorf("invalid file protocol revision (%#x)", revision)
	}

	return
}
