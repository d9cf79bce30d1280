// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefitest

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"path"
	"strings"
	"sync"
	"unicode/utf16"
	"unsafe"

	"github.com/usbarmory/go-uefi/uefi"
)

// EFI_LOADED_IMAGE_PROTOCOL.DeviceHandle offset
const deviceHandleOffset = 24

// vendorDevicePath represents the emulated volume device path, a single
// vendor defined hardware node.
type vendorDevicePath struct {
	Node   uefi.DevicePathNode
	Vendor uefi.GUID
	End    uefi.DevicePathNode
}

// VolumeVendor is the vendor GUID of the emulated volume device path.
var VolumeVendor = uefi.MustParseGUID("f5e47b0d-6c1a-4a5e-9d2e-3c0c9a8b7e61")

type openFile struct {
	name    string
	data    []byte
	pos     int
	entries []fs.FileInfo
}

type fileSystem struct {
	sync.Mutex

	f     *Firmware
	fsys  fs.FS
	files map[uint64]*openFile

	// EFI File Protocol template
	proto *uefi.FileProtocol
}

// goBytes returns a view over a caller provided buffer.
func goBytes(addr uint64, size uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), size)
}

func getUint64(addr uint64) uint64 {
	return *(*uint64)(unsafe.Pointer(uintptr(addr)))
}

func putUint64(addr uint64, val uint64) {
	*(*uint64)(unsafe.Pointer(uintptr(addr))) = val
}

// goString reads a caller provided NUL terminated UCS-2 string.
func goString(addr uint64) string {
	var s []uint16

	for i := uint64(0); i < 1024; i++ {
		c := *(*uint16)(unsafe.Pointer(uintptr(addr + i*2)))

		if c == 0x00 {
			break
		}

		s = append(s, c)
	}

	return string(utf16.Decode(s))
}

// InstallFileSystem installs an EFI Simple File System Protocol, serving
// fsys read-only, and its EFI Device Path Protocol on a new handle. The
// handle is set as the device the running image was loaded from.
func (f *Firmware) InstallFileSystem(fsys fs.FS) uefi.Handle {
	v := &fileSystem{
		f:     f,
		fsys:  fsys,
		files: make(map[uint64]*openFile),
	}

	v.proto = &uefi.FileProtocol{
		Revision: uefi.EFI_FILE_PROTOCOL_REVISION2,
		Open:     f.Func(v.open),
		Close:    f.Func(v.close),
		Read:     f.Func(v.read),
		GetInfo:  f.Func(v.getInfo),
	}

	sfs := f.Write(&uefi.SimpleFileSystemProtocol{
		Revision:   uefi.EFI_SIMPLE_FILE_SYSTEM_PROTOCOL_REVISION,
		OpenVolume: f.Func(v.openVolume),
	})

	dp := f.Write(&vendorDevicePath{
		Node: uefi.DevicePathNode{
			Type:    uefi.HardwareDevicePath,
			SubType: 0x04,
			Length:  20,
		},
		Vendor: VolumeVendor,
		End: uefi.DevicePathNode{
			Type:    uefi.EndDevicePath,
			SubType: uefi.EndEntireSubType,
			Length:  4,
		},
	})

	f.Lock()
	defer f.Unlock()

	h := f.install(0, uefi.EFI_SIMPLE_FILE_SYSTEM_PROTOCOL_GUID, sfs)
	f.install(h, uefi.EFI_DEVICE_PATH_PROTOCOL_GUID, dp)
	f.volumes[h] = v

	binary.LittleEndian.PutUint64(f.mem[f.loadedImage+deviceHandleOffset:], uint64(h))

	return h
}

// OpenFiles returns the number of files opened and not yet closed.
func (f *Firmware) OpenFiles(h uefi.Handle) (n int) {
	f.Lock()
	v := f.volumes[h]
	f.Unlock()

	if v == nil {
		return
	}

	v.Lock()
	defer v.Unlock()

	return len(v.files)
}

// file allocates a new EFI File Protocol instance for the named file.
func (v *fileSystem) file(name string) (addr uint64, status uefi.Status) {
	info, err := fs.Stat(v.fsys, name)

	if err != nil {
		return 0, uefi.EFI_NOT_FOUND
	}

	of := &openFile{
		name: name,
	}

	if info.IsDir() {
		entries, err := fs.ReadDir(v.fsys, name)

		if err != nil {
			return 0, uefi.EFI_DEVICE_ERROR
		}

		// firmware reports the relative entries as well
		of.entries = []fs.FileInfo{&dotInfo{info, "."}, &dotInfo{info, ".."}}

		for _, e := range entries {
			if fi, err := e.Info(); err == nil {
				of.entries = append(of.entries, fi)
			}
		}
	} else if of.data, err = fs.ReadFile(v.fsys, name); err != nil {
		return 0, uefi.EFI_DEVICE_ERROR
	}

	addr = v.f.Write(v.proto)

	v.Lock()
	v.files[addr] = of
	v.Unlock()

	return addr, uefi.EFI_SUCCESS
}

func (v *fileSystem) lookup(addr uint64) *openFile {
	v.Lock()
	defer v.Unlock()

	return v.files[addr]
}

// EFI_SIMPLE_FILE_SYSTEM_PROTOCOL.OpenVolume(This, Root)
func (v *fileSystem) openVolume(args ...uint64) uefi.Status {
	if args[1] == 0 {
		return uefi.EFI_INVALID_PARAMETER
	}

	addr, status := v.file(".")

	if status == uefi.EFI_SUCCESS {
		putUint64(args[1], addr)
	}

	return status
}

// EFI_FILE_PROTOCOL.Open(This, NewHandle, FileName, OpenMode, Attributes)
func (v *fileSystem) open(args ...uint64) uefi.Status {
	parent := v.lookup(args[0])

	if parent == nil || args[1] == 0 || args[2] == 0 {
		return uefi.EFI_INVALID_PARAMETER
	}

	if args[3] != uefi.EFI_FILE_MODE_READ {
		return uefi.EFI_WRITE_PROTECTED
	}

	name := strings.ReplaceAll(goString(args[2]), `\`, "/")

	if !strings.HasPrefix(name, "/") {
		name = path.Join(parent.name, name)
	}

	name = strings.TrimPrefix(path.Clean("/"+name), "/")

	if name == "" {
		name = "."
	}

	addr, status := v.file(name)

	if status == uefi.EFI_SUCCESS {
		putUint64(args[1], addr)
	}

	return status
}

// EFI_FILE_PROTOCOL.Close(This)
func (v *fileSystem) close(args ...uint64) uefi.Status {
	v.Lock()
	defer v.Unlock()

	if _, ok := v.files[args[0]]; !ok {
		return uefi.EFI_INVALID_PARAMETER
	}

	delete(v.files, args[0])

	return uefi.EFI_SUCCESS
}

// EFI_FILE_PROTOCOL.Read(This, BufferSize, Buffer)
func (v *fileSystem) read(args ...uint64) uefi.Status {
	of := v.lookup(args[0])

	if of == nil || args[1] == 0 {
		return uefi.EFI_INVALID_PARAMETER
	}

	size := getUint64(args[1])

	if of.entries == nil {
		n := copy(goBytes(args[2], size), of.data[min(of.pos, len(of.data)):])
		of.pos += n
		putUint64(args[1], uint64(n))

		return uefi.EFI_SUCCESS
	}

	if of.pos >= len(of.entries) {
		putUint64(args[1], 0)
		return uefi.EFI_SUCCESS
	}

	info := encodeFileInfo(of.entries[of.pos])

	if uint64(len(info)) > size {
		putUint64(args[1], uint64(len(info)))
		return uefi.EFI_BUFFER_TOO_SMALL
	}

	copy(goBytes(args[2], size), info)
	of.pos++
	putUint64(args[1], uint64(len(info)))

	return uefi.EFI_SUCCESS
}

// EFI_FILE_PROTOCOL.GetInfo(This, InformationType, BufferSize, Buffer)
func (v *fileSystem) getInfo(args ...uint64) uefi.Status {
	of := v.lookup(args[0])

	if of == nil || args[1] == 0 || args[2] == 0 {
		return uefi.EFI_INVALID_PARAMETER
	}

	if !bytes.Equal(goBytes(args[1], 16), uefi.EFI_FILE_INFO_ID[:]) {
		return uefi.EFI_UNSUPPORTED
	}

	fi, err := fs.Stat(v.fsys, of.name)

	if err != nil {
		return uefi.EFI_DEVICE_ERROR
	}

	info := encodeFileInfo(fi)
	size := getUint64(args[2])

	putUint64(args[2], uint64(len(info)))

	if uint64(len(info)) > size {
		return uefi.EFI_BUFFER_TOO_SMALL
	}

	copy(goBytes(args[3], size), info)

	return uefi.EFI_SUCCESS
}

// encodeFileInfo returns the EFI_FILE_INFO representation of a file.
func encodeFileInfo(fi fs.FileInfo) []byte {
	var attr uint64

	name := append(utf16.Encode([]rune(fi.Name())), 0x00)
	size := 80 + len(name)*2

	if fi.IsDir() {
		attr |= uefi.EFI_FILE_DIRECTORY
	}

	if fi.Mode().Perm()&0200 == 0 {
		attr |= uefi.EFI_FILE_READ_ONLY
	}

	mtime := *uefi.NewTime(fi.ModTime())

	buf := new(bytes.Buffer)

	binary.Write(buf, binary.LittleEndian, &uefi.FileInformation{
		Size:             uint64(size),
		FileSize:         uint64(fi.Size()),
		PhysicalSize:     uint64(fi.Size()+uefi.PageSize-1) &^ (uefi.PageSize - 1),
		CreateTime:       mtime,
		LastAccessTime:   mtime,
		ModificationTime: mtime,
		Attribute:        attr,
	})

	binary.Write(buf, binary.LittleEndian, name)

	return buf.Bytes()
}

// dotInfo represents a relative directory entry.
type dotInfo struct {
	fs.FileInfo
	name string
}

func (d *dotInfo) Name() string { return d.name }
