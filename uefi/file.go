// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"io"
	"io/fs"
	"path"
	"sync"
	"time"
)

const (
	EFI_FILE_PROTOCOL_REVISION  = 0x00010000
	EFI_FILE_PROTOCOL_REVISION2 = 0x00020000
)

// EFI File Protocol open modes
const (
	EFI_FILE_MODE_READ   = 0x0000000000000001
	EFI_FILE_MODE_WRITE  = 0x0000000000000002
	EFI_FILE_MODE_CREATE = 0x8000000000000000
)

// EFI File Protocol attributes
const (
	EFI_FILE_READ_ONLY = 0x01
	EFI_FILE_HIDDEN    = 0x02
	EFI_FILE_SYSTEM    = 0x04
	EFI_FILE_RESERVED  = 0x08
	EFI_FILE_DIRECTORY = 0x10
	EFI_FILE_ARCHIVE   = 0x20
)

// EFI File Protocol offsets
const (
	fileOpen    = 0x08
	fileClose   = 0x10
	fileRead    = 0x20
	fileGetInfo = 0x40
)

const (
	// EFI_FILE_INFO fixed size, followed by the NUL terminated file name
	fileInfoSize = 80
	// maximum file name length
	maxFileName = 255
)

// FileProtocol represents the EFI File Protocol layout.
type FileProtocol struct {
	Revision    uint64
	Open        uint64
	Close       uint64
	Delete      uint64
	Read        uint64
	Write       uint64
	GetPosition uint64
	SetPosition uint64
	GetInfo     uint64
	SetInfo     uint64
	Flush       uint64
	OpenEx      uint64
	ReadEx      uint64
	WriteEx     uint64
	FlushEx     uint64
}

// FileInformation represents the fixed-size part of an EFI_FILE_INFO
// instance.
type FileInformation struct {
	Size             uint64
	FileSize         uint64
	PhysicalSize     uint64
	CreateTime       Time
	LastAccessTime   Time
	ModificationTime Time
	Attribute        uint64
}

// FileInfo implements the [fs.FileInfo] interface over an EFI_FILE_INFO
// instance.
type FileInfo struct {
	info FileInformation
	name string
}

// Name returns the base name of the file.
func (fi *FileInfo) Name() string { return fi.name }

// Size returns the file size in bytes.
func (fi *FileInfo) Size() int64 { return int64(fi.info.FileSize) }

// IsDir returns whether the file is a directory.
func (fi *FileInfo) IsDir() bool { return fi.info.Attribute&EFI_FILE_DIRECTORY != 0 }

// Sys returns the underlying [FileInformation].
func (fi *FileInfo) Sys() any { return &fi.info }

// ModTime returns the file modification time.
func (fi *FileInfo) ModTime() time.Time {
	return fi.info.ModificationTime.Time()
}

// Mode returns the file mode bits, EFI volumes carry no permissions beyond
// the read-only attribute.
func (fi *FileInfo) Mode() fs.FileMode {
	switch {
	case fi.IsDir():
		return fs.ModeDir | 0555
	case fi.info.Attribute&EFI_FILE_READ_ONLY != 0:
		return 0444
	default:
		return 0644
	}
}

// decodeFileInfo parses an EFI_FILE_INFO instance.
func decodeFileInfo(buf []byte) (fi *FileInfo, err error) {
	fi = &FileInfo{}

	if len(buf) < fileInfoSize {
		return nil, io.ErrUnexpectedEOF
	}

	if err = unmarshalBinary(buf, &fi.info); err != nil {
		return
	}

	size := min(int(fi.info.Size), len(buf))

	if size < fileInfoSize {
		return nil, io.ErrUnexpectedEOF
	}

	name := make([]uint16, (size-fileInfoSize)/2)

	for i := range name {
		name[i] = binary.LittleEndian.Uint16(buf[fileInfoSize+i*2:])
	}

	fi.name = fromUTF16(name)

	return
}

// File represents a file opened, read-only, from an [FS] instance and
// implements the [fs.File] and [fs.ReadDirFile] interfaces.
type File struct {
	sync.Mutex

	root *FS
	name string
	addr uint64
	info *FileInfo

	// directory entries returned by ReadDir
	entries int
}

func (f *File) call(offset uint64, args ...uint64) (Status, error) {
	if f.addr == 0 {
		return 0, fs.ErrClosed
	}

	if err := f.root.usable(); err != nil {
		return 0, err
	}

	return f.root.dir.fw.Call(f.addr+offset, append([]uint64{f.addr}, args...)...), nil
}

// Stat returns the file information, as retrieved on open.
func (f *File) Stat() (fs.FileInfo, error) {
	f.Lock()
	defer f.Unlock()

	if f.addr == 0 {
		return nil, &fs.PathError{Op: "stat", Path: f.name, Err: fs.ErrClosed}
	}

	return f.info, nil
}

// Read calls EFI_FILE_PROTOCOL.Read().
func (f *File) Read(p []byte) (n int, err error) {
	f.Lock()
	defer f.Unlock()

	if f.info != nil && f.info.IsDir() {
		return 0, &fs.PathError{Op: "read", Path: f.name, Err: fs.ErrInvalid}
	}

	if len(p) == 0 {
		return
	}

	if n, err = f.read(p); err != nil {
		return
	}

	if n == 0 {
		return 0, io.EOF
	}

	return
}

// read calls EFI_FILE_PROTOCOL.Read(), on directories each call returns one
// EFI_FILE_INFO entry.
func (f *File) read(p []byte) (n int, err error) {
	size := []uint64{uint64(len(p))}

	status, err := f.call(fileRead, ptrval(size), ptrval(p))

	if err == nil {
		err = parseStatus("EFI_FILE_PROTOCOL.Read", status)
	}

	if err != nil {
		return 0, &fs.PathError{Op: "read", Path: f.name, Err: err}
	}

	return int(min(size[0], uint64(len(p)))), nil
}

// Close calls EFI_FILE_PROTOCOL.Close(), exactly once regardless of the
// number of invocations.
func (f *File) Close() (err error) {
	f.Lock()
	defer f.Unlock()

	if f.addr == 0 {
		return
	}

	status, err := f.call(fileClose)
	f.addr = 0

	if err != nil {
		return &fs.PathError{Op: "close", Path: f.name, Err: err}
	}

	return parseStatus("EFI_FILE_PROTOCOL.Close", status)
}

// getInfo calls EFI_FILE_PROTOCOL.GetInfo() for EFI_FILE_INFO.
func (f *File) getInfo() (fi *FileInfo, err error) {
	const op = "EFI_FILE_PROTOCOL.GetInfo"

	buf := make([]byte, fileInfoSize+(maxFileName+1)*2)

	for range 2 {
		size := []uint64{uint64(len(buf))}

		status, err := f.call(fileGetInfo, ptrval(EFI_FILE_INFO_ID[:]), ptrval(size), ptrval(buf))

		if err != nil {
			return nil, err
		}

		if status == EFI_BUFFER_TOO_SMALL && size[0] > uint64(len(buf)) {
			buf = make([]byte, size[0])
			continue
		}

		if err = parseStatus(op, status); err != nil {
			return nil, err
		}

		if fi, err = decodeFileInfo(buf[:min(size[0], uint64(len(buf)))]); err != nil {
			return nil, err
		}

		fi.name = path.Base(f.name)

		return fi, nil
	}

	return nil, statusError(op, EFI_BUFFER_TOO_SMALL, nil)
}
