// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"
)

// maximum number of entries read from a single directory
const maxDirEntries = 4096

// DirEntry implements the [fs.DirEntry] interface.
type DirEntry struct {
	info *FileInfo
}

// Name returns the entry base name.
func (d *DirEntry) Name() string { return d.info.Name() }

// IsDir returns whether the entry is a directory.
func (d *DirEntry) IsDir() bool { return d.info.IsDir() }

// Type returns the entry type bits.
func (d *DirEntry) Type() fs.FileMode { return d.info.Mode().Type() }

// Info returns the entry file information.
func (d *DirEntry) Info() (fs.FileInfo, error) { return d.info, nil }

// ReadDir reads the directory contents, as [fs.ReadDirFile], skipping the
// "." and ".." entries.
func (f *File) ReadDir(n int) (entries []fs.DirEntry, err error) {
	f.Lock()
	defer f.Unlock()

	if f.info == nil || !f.info.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: f.name, Err: fs.ErrInvalid}
	}

	buf := make([]byte, fileInfoSize+(maxFileName+1)*2)

	for n <= 0 || len(entries) < n {
		var size int

		if f.entries >= maxDirEntries {
			return entries, &fs.PathError{Op: "readdir", Path: f.name, Err: fmt.Errorf("more than %d entries", maxDirEntries)}
		}

		if size, err = f.read(buf); err != nil {
			return
		}

		if size == 0 {
			break
		}

		f.entries++

		info, err := decodeFileInfo(buf[:size])

		if err != nil {
			return entries, &fs.PathError{Op: "readdir", Path: f.name, Err: err}
		}

		if info.name == "." || info.name == ".." {
			continue
		}

		entries = append(entries, &DirEntry{info: info})
	}

	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})

	if n > 0 && len(entries) == 0 {
		return nil, io.EOF
	}

	return
}
