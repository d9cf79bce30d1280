// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefitest

import (
	"strings"
	"unicode/utf16"

	"github.com/usbarmory/go-uefi/uefi"
)

// emulated text modes
var modes = [][2]uint64{
	{80, 25},
	{80, 50},
}

// maximum renderable character, the emulated console only holds Latin-1
// glyphs
const maxGlyph = 0xff

type textOutput struct {
	f *Firmware

	out       strings.Builder
	calls     int
	mode      uint64
	attribute uint64
	col       uint64
	row       uint64
	cursor    bool
}

type textInput struct {
	f *Firmware

	keys []uefi.InputKey
}

// Output returns all text rendered on the emulated console.
func (f *Firmware) Output() string {
	f.Lock()
	defer f.Unlock()

	return f.conOut.out.String()
}

// OutputCalls returns the number of OutputString() calls.
func (f *Firmware) OutputCalls() int {
	f.Lock()
	defer f.Unlock()

	return f.conOut.calls
}

// Attribute returns the current console attribute.
func (f *Firmware) Attribute() uint64 {
	f.Lock()
	defer f.Unlock()

	return f.conOut.attribute
}

// Cursor returns the current cursor position and visibility.
func (f *Firmware) Cursor() (col uint64, row uint64, visible bool) {
	f.Lock()
	defer f.Unlock()

	return f.conOut.col, f.conOut.row, f.conOut.cursor
}

// Type queues keystrokes for the argument text.
func (f *Firmware) Type(s string) {
	f.Lock()
	defer f.Unlock()

	for _, c := range utf16.Encode([]rune(s)) {
		f.conIn.keys = append(f.conIn.keys, uefi.InputKey{UnicodeChar: c})
	}
}

// Press queues a keystroke for the argument scan code.
func (f *Firmware) Press(scanCode uint16) {
	f.Lock()
	defer f.Unlock()

	f.conIn.keys = append(f.conIn.keys, uefi.InputKey{ScanCode: scanCode})
}

func (o *textOutput) Reset(extended bool) uefi.Status {
	o.f.Lock()
	defer o.f.Unlock()

	o.out.Reset()
	o.col = 0
	o.row = 0

	return uefi.EFI_SUCCESS
}

func (o *textOutput) OutputString(s []uint16) uefi.Status {
	o.f.Lock()
	defer o.f.Unlock()

	status := uefi.EFI_SUCCESS
	o.calls++

	for _, c := range s {
		switch {
		case c == 0:
			return status
		case c > maxGlyph:
			status = uefi.EFI_WARN_UNKNOWN_GLYPH
		default:
			o.out.WriteRune(rune(c))
		}
	}

	// unterminated string
	return uefi.EFI_INVALID_PARAMETER
}

func (o *textOutput) TestString(s []uint16) uefi.Status {
	for _, c := range s {
		switch {
		case c == 0:
			return uefi.EFI_SUCCESS
		case c > maxGlyph:
			return uefi.EFI_UNSUPPORTED
		}
	}

	return uefi.EFI_INVALID_PARAMETER
}

func (o *textOutput) QueryMode(mode uint64, cols *uint64, rows *uint64) uefi.Status {
	if mode >= uint64(len(modes)) {
		return uefi.EFI_UNSUPPORTED
	}

	*cols = modes[mode][0]
	*rows = modes[mode][1]

	return uefi.EFI_SUCCESS
}

func (o *textOutput) SetMode(mode uint64) uefi.Status {
	o.f.Lock()
	defer o.f.Unlock()

	if mode >= uint64(len(modes)) {
		return uefi.EFI_UNSUPPORTED
	}

	o.mode = mode

	return uefi.EFI_SUCCESS
}

func (o *textOutput) SetAttribute(attr uint64) uefi.Status {
	o.f.Lock()
	defer o.f.Unlock()

	if attr > 0x7f {
		return uefi.EFI_UNSUPPORTED
	}

	o.attribute = attr

	return uefi.EFI_SUCCESS
}

func (o *textOutput) ClearScreen() uefi.Status {
	o.f.Lock()
	defer o.f.Unlock()

	o.col = 0
	o.row = 0

	return uefi.EFI_SUCCESS
}

func (o *textOutput) SetCursorPosition(col uint64, row uint64) uefi.Status {
	o.f.Lock()
	defer o.f.Unlock()

	if col >= modes[o.mode][0] || row >= modes[o.mode][1] {
		return uefi.EFI_UNSUPPORTED
	}

	o.col = col
	o.row = row

	return uefi.EFI_SUCCESS
}

func (o *textOutput) EnableCursor(visible bool) uefi.Status {
	o.f.Lock()
	defer o.f.Unlock()

	o.cursor = visible

	return uefi.EFI_SUCCESS
}

func (i *textInput) Reset(extended bool) uefi.Status {
	i.f.Lock()
	defer i.f.Unlock()

	i.keys = nil

	return uefi.EFI_SUCCESS
}

func (i *textInput) ReadKeyStroke(k *uefi.InputKey) uefi.Status {
	i.f.Lock()
	defer i.f.Unlock()

	if len(i.keys) == 0 {
		return uefi.EFI_NOT_READY
	}

	*k = i.keys[0]
	i.keys = i.keys[1:]

	return uefi.EFI_SUCCESS
}
