// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefitest

import (
	"unicode/utf16"

	"github.com/usbarmory/go-uefi/uefi"
)

// emulated variable store size
const (
	MaxVariableStorage = 64 * 1024
	MaxVariableSize    = 8 * 1024
)

type variable struct {
	name string
	guid uefi.GUID
	attr uint32
	data []byte
}

func (v *variable) size() uint64 {
	return uint64((len(v.name)+1)*2 + len(v.data))
}

type runtimeServices struct {
	f *Firmware
}

func decodeName(name []uint16) string {
	for i, c := range name {
		if c == 0 {
			name = name[:i]
			break
		}
	}

	return string(utf16.Decode(name))
}

func (f *Firmware) variable(name string, guid uefi.GUID) (int, *variable) {
	for i, v := range f.variables {
		if v.name == name && v.guid == guid {
			return i, v
		}
	}

	return -1, nil
}

// visible returns whether a variable is accessible in the current phase.
func (f *Firmware) visible(v *variable) bool {
	return !f.exited || v.attr&uefi.EFI_VARIABLE_RUNTIME_ACCESS != 0
}

func (f *Firmware) used() (n uint64) {
	for _, v := range f.variables {
		n += v.size()
	}

	return
}

func (r *runtimeServices) GetTime(t *uefi.Time, c *uefi.TimeCapabilities) uefi.Status {
	f := r.f
	f.Lock()
	defer f.Unlock()

	if t == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	*t = f.rtc

	if c != nil {
		*c = uefi.TimeCapabilities{
			Resolution: 1,
			Accuracy:   50000000,
		}
	}

	return uefi.EFI_SUCCESS
}

func validTime(t *uefi.Time) bool {
	switch {
	case t.Year < 1900 || t.Year > 9999:
	case t.Month < 1 || t.Month > 12:
	case t.Day < 1 || t.Day > 31:
	case t.Hour > 23 || t.Minute > 59 || t.Second > 59:
	case t.Nanosecond > 999999999:
	case t.TimeZone != uefi.UnspecifiedTimezone && (t.TimeZone < -1440 || t.TimeZone > 1440):
	default:
		return true
	}

	return false
}

func (r *runtimeServices) SetTime(t *uefi.Time) uefi.Status {
	f := r.f
	f.Lock()
	defer f.Unlock()

	if t == nil || !validTime(t) {
		return uefi.EFI_INVALID_PARAMETER
	}

	f.rtc = *t

	return uefi.EFI_SUCCESS
}

func (r *runtimeServices) GetVariable(name []uint16, vendor uefi.GUID, attr *uint32, size *uint64, data []byte) uefi.Status {
	f := r.f
	f.Lock()
	defer f.Unlock()

	if size == nil || len(name) == 0 {
		return uefi.EFI_INVALID_PARAMETER
	}

	_, v := f.variable(decodeName(name), vendor)

	if v == nil || !f.visible(v) {
		return uefi.EFI_NOT_FOUND
	}

	if attr != nil {
		*attr = v.attr
	}

	if *size < uint64(len(v.data)) || len(data) < len(v.data) {
		*size = uint64(len(v.data))
		return uefi.EFI_BUFFER_TOO_SMALL
	}

	copy(data, v.data)
	*size = uint64(len(v.data))

	return uefi.EFI_SUCCESS
}

func (r *runtimeServices) GetNextVariableName(size *uint64, name []uint16, vendor *uefi.GUID) uefi.Status {
	f := r.f
	f.Lock()
	defer f.Unlock()

	if size == nil || vendor == nil || len(name) == 0 {
		return uefi.EFI_INVALID_PARAMETER
	}

	var visible []*variable

	for _, v := range f.variables {
		if f.visible(v) {
			visible = append(visible, v)
		}
	}

	next := 0

	if current := decodeName(name); current != "" {
		next = -1

		for i, v := range visible {
			if v.name == current && v.guid == *vendor {
				next = i + 1
				break
			}
		}

		if next < 0 {
			return uefi.EFI_INVALID_PARAMETER
		}
	}

	if next >= len(visible) {
		return uefi.EFI_NOT_FOUND
	}

	v := visible[next]
	u := append(utf16.Encode([]rune(v.name)), 0x00)
	need := uint64(len(u) * 2)

	if *size < need || len(name) < len(u) {
		*size = need
		return uefi.EFI_BUFFER_TOO_SMALL
	}

	copy(name, u)
	*vendor = v.guid
	*size = need

	return uefi.EFI_SUCCESS
}

func (r *runtimeServices) SetVariable(name []uint16, vendor uefi.GUID, attr uint32, data []byte) uefi.Status {
	f := r.f
	f.Lock()
	defer f.Unlock()

	s := decodeName(name)

	if s == "" {
		return uefi.EFI_INVALID_PARAMETER
	}

	if attr&uefi.EFI_VARIABLE_RUNTIME_ACCESS != 0 && attr&uefi.EFI_VARIABLE_BOOTSERVICE_ACCESS == 0 {
		return uefi.EFI_INVALID_PARAMETER
	}

	// authenticated variables are not emulated
	if attr&(uefi.EFI_VARIABLE_AUTHENTICATED_WRITE_ACCESS|uefi.EFI_VARIABLE_TIME_BASED_AUTHENTICATED_WRITE_ACCESS|uefi.EFI_VARIABLE_ENHANCED_AUTHENTICATED_ACCESS) != 0 {
		return uefi.EFI_UNSUPPORTED
	}

	if f.exited && attr != 0 && attr&uefi.EFI_VARIABLE_RUNTIME_ACCESS == 0 {
		return uefi.EFI_INVALID_PARAMETER
	}

	i, v := f.variable(s, vendor)

	if v != nil && !f.visible(v) {
		return uefi.EFI_WRITE_PROTECTED
	}

	appendWrite := attr&uefi.EFI_VARIABLE_APPEND_WRITE != 0
	attr &^= uefi.EFI_VARIABLE_APPEND_WRITE

	// deletion
	if len(data) == 0 && !appendWrite || attr&(uefi.EFI_VARIABLE_BOOTSERVICE_ACCESS|uefi.EFI_VARIABLE_RUNTIME_ACCESS) == 0 {
		if v == nil {
			return uefi.EFI_NOT_FOUND
		}

		f.variables = append(f.variables[:i], f.variables[i+1:]...)

		return uefi.EFI_SUCCESS
	}

	if v != nil && v.attr != attr {
		return uefi.EFI_INVALID_PARAMETER
	}

	n := &variable{
		name: s,
		guid: vendor,
		attr: attr,
		data: append([]byte{}, data...),
	}

	if v != nil && appendWrite {
		n.data = append(append([]byte{}, v.data...), data...)
	}

	used := f.used()

	if v != nil {
		used -= v.size()
	}

	if len(n.data) > MaxVariableSize || used+n.size() > MaxVariableStorage {
		return uefi.EFI_OUT_OF_RESOURCES
	}

	if v != nil {
		f.variables[i] = n
	} else {
		f.variables = append(f.variables, n)
	}

	return uefi.EFI_SUCCESS
}

func (r *runtimeServices) QueryVariableInfo(attr uint32, maxStorage *uint64, remaining *uint64, maxSize *uint64) uefi.Status {
	f := r.f
	f.Lock()
	defer f.Unlock()

	if attr == 0 || maxStorage == nil || remaining == nil || maxSize == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	*maxStorage = MaxVariableStorage
	*remaining = MaxVariableStorage - f.used()
	*maxSize = MaxVariableSize

	return uefi.EFI_SUCCESS
}

func (r *runtimeServices) GetNextHighMonotonicCount(count *uint32) uefi.Status {
	f := r.f
	f.Lock()
	defer f.Unlock()

	if count == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	f.monotonic++
	*count = f.monotonic

	return uefi.EFI_SUCCESS
}

func (r *runtimeServices) ResetSystem(t uefi.ResetType, status uefi.Status, data []byte) uefi.Status {
	f := r.f
	f.Lock()
	defer f.Unlock()

	if t > uefi.EfiResetPlatformSpecific {
		return uefi.EFI_INVALID_PARAMETER
	}

	f.resets = append(f.resets, Reset{
		Type:   t,
		Status: status,
	})

	return uefi.EFI_SUCCESS
}
