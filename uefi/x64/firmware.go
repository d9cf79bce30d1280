// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package x64

import (
	"errors"
	"unsafe"

	"github.com/usbarmory/go-uefi/uefi"
)

// defined in efi.s
func callService(fn uint64, n int, args []uint64) (status uint64)

// minimum number of arguments, held in registers
const registerArgs = 4

// ptr returns the address of a Go value handed to firmware.
//
// Obtaining a pointer in this fashion is typically unsafe, however as
// arguments are prepared right before invoking Go assembly it is identical
// to having pointer arguments in the callService prototype.
func ptr[T any](p *T) uint64 {
	if p == nil {
		return 0
	}

	return uint64(uintptr(unsafe.Pointer(p)))
}

// slice returns the address of the first element of a Go buffer handed to
// firmware, zero when empty.
func slice[T any](buf []T) uint64 {
	if len(buf) == 0 {
		return 0
	}

	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(buf))))
}

func bool64(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}

// firmware implements [uefi.Firmware] over the running UEFI firmware.
type firmware struct{}

// Bytes returns a view over size bytes of physical memory at addr.
func (fw *firmware) Bytes(addr uint64, size int) ([]byte, error) {
	if addr == 0 || size < 0 || addr+uint64(size) < addr {
		return nil, errors.New("invalid memory access")
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), size), nil
}

// Call invokes the firmware function whose pointer is stored at addr.
func (fw *firmware) Call(addr uint64, args ...uint64) uefi.Status {
	fn := *(*uint64)(unsafe.Pointer(uintptr(addr)))

	if fn == 0 {
		return uefi.EFI_UNSUPPORTED
	}

	n := len(args)

	for len(args) < registerArgs {
		args = append(args, 0)
	}

	return uefi.Status(callService(fn, n, args))
}

func (fw *firmware) BootTable(addr uint64) uefi.BootTable {
	return &bootTable{fw: fw, base: addr}
}

func (fw *firmware) RuntimeTable(addr uint64) uefi.RuntimeTable {
	return &runtimeTable{fw: fw, base: addr}
}

func (fw *firmware) TextOutput(addr uint64) uefi.TextOutput {
	return &textOutput{fw: fw, base: addr}
}

func (fw *firmware) TextInput(addr uint64) uefi.TextInput {
	return &textInput{fw: fw, base: addr}
}

// EFI Simple Text Output Protocol offsets
const (
	outputReset       = 0x00
	outputString      = 0x08
	testString        = 0x10
	queryMode         = 0x18
	setMode           = 0x20
	setAttribute      = 0x28
	clearScreen       = 0x30
	setCursorPosition = 0x38
	enableCursor      = 0x40
)

type textOutput struct {
	fw   *firmware
	base uint64
}

func (o *textOutput) call(offset uint64, args ...uint64) uefi.Status {
	return o.fw.Call(o.base+offset, append([]uint64{o.base}, args...)...)
}

func (o *textOutput) Reset(extended bool) uefi.Status {
	return o.call(outputReset, bool64(extended))
}

func (o *textOutput) OutputString(s []uint16) uefi.Status {
	return o.call(outputString, slice(s))
}

func (o *textOutput) TestString(s []uint16) uefi.Status {
	return o.call(testString, slice(s))
}

func (o *textOutput) QueryMode(mode uint64, cols *uint64, rows *uint64) uefi.Status {
	return o.call(queryMode, mode, ptr(cols), ptr(rows))
}

func (o *textOutput) SetMode(mode uint64) uefi.Status {
	return o.call(setMode, mode)
}

func (o *textOutput) SetAttribute(attr uint64) uefi.Status {
	return o.call(setAttribute, attr)
}

func (o *textOutput) ClearScreen() uefi.Status {
	return o.call(clearScreen)
}

func (o *textOutput) SetCursorPosition(col uint64, row uint64) uefi.Status {
	return o.call(setCursorPosition, col, row)
}

func (o *textOutput) EnableCursor(visible bool) uefi.Status {
	return o.call(enableCursor, bool64(visible))
}

// EFI Simple Text Input Protocol offsets
const (
	inputReset    = 0x00
	readKeyStroke = 0x08
)

type textInput struct {
	fw   *firmware
	base uint64
}

func (i *textInput) Reset(extended bool) uefi.Status {
	return i.fw.Call(i.base+inputReset, i.base, bool64(extended))
}

func (i *textInput) ReadKeyStroke(k *uefi.InputKey) uefi.Status {
	return i.fw.Call(i.base+readKeyStroke, i.base, ptr(k))
}
