// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// maximum number of characters for each EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL
// OutputString() call
const outputChunkSize = 128

// EFI Simple Text Input scan codes
const (
	ScanNull     = 0x00
	ScanUp       = 0x01
	ScanDown     = 0x02
	ScanRight    = 0x03
	ScanLeft     = 0x04
	ScanHome     = 0x05
	ScanEnd      = 0x06
	ScanInsert   = 0x07
	ScanDelete   = 0x08
	ScanPageUp   = 0x09
	ScanPageDown = 0x0a
	ScanEscape   = 0x17
)

// VT100 sequences for scan codes
var scanSequences = map[uint16]string{
	ScanUp:       "\x1b[A",
	ScanDown:     "\x1b[B",
	ScanRight:    "\x1b[C",
	ScanLeft:     "\x1b[D",
	ScanHome:     "\x1b[H",
	ScanEnd:      "\x1b[F",
	ScanInsert:   "\x1b[2~",
	ScanDelete:   "\x1b[3~",
	ScanPageUp:   "\x1b[5~",
	ScanPageDown: "\x1b[6~",
	ScanEscape:   "\x1b",
}

// EFI text colors
const (
	Black = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGray
	DarkGray
	LightBlue
	LightGreen
	LightCyan
	LightRed
	LightMagenta
	Yellow
	White
)

// InputKey represents an EFI Input Key descriptor.
type InputKey struct {
	ScanCode    uint16
	UnicodeChar uint16
}

// Console implements the [io.ReadWriter] interface over EFI Simple Text
// Input/Output protocol.
type Console struct {
	// ForceLine controls whether line feeds (LF) should be supplemented
	// with a carriage return (CR).
	ForceLine bool

	// ReplaceTabs controls whether Console I/O output should have Tab
	// characters replaced with a number of spaces.
	ReplaceTabs int

	// In and Out represent the console protocols, a nil value disables
	// the corresponding direction.
	In  TextInput
	Out TextOutput

	// nil for consoles not tied to Boot Services availability
	state *bootState

	// key sequence bytes not yet returned by Read
	pending []byte
}

// NewConsole returns a console over the argument protocols, its use is
// not restricted to Boot Services availability.
func NewConsole(in TextInput, out TextOutput) *Console {
	return &Console{
		ForceLine: true,
		In:        in,
		Out:       out,
	}
}

func (c *Console) available(op string) error {
	if c.state == nil {
		return nil
	}

	_, err := c.state.boot(op)

	return err
}

// Output outputs a UCS-2 string, a NUL terminator is appended when missing.
func (c *Console) Output(s []uint16) (status Status) {
	if c.Out == nil || len(s) == 0 {
		return
	}

	if s[len(s)-1] != 0x00 {
		s = append(s, 0x00)
	}

	return c.Out.OutputString(s)
}

// Read available data to buffer from console, key strokes are converted to
// UTF-8 while cursor keys are converted to VT100 sequences.
func (c *Console) Read(p []byte) (n int, err error) {
	var k InputKey
	var buf [utf8.UTFMax]byte

	if err = c.available("EFI_SIMPLE_TEXT_INPUT_PROTOCOL.ReadKeyStroke"); err != nil {
		return
	}

	if c.In == nil {
		return
	}

	n = copy(p, c.pending)
	c.pending = c.pending[n:]

	for n < len(p) {
		status := c.In.ReadKeyStroke(&k)

		switch {
		case status == EFI_NOT_READY:
			return
		case status.IsError():
			return n, parseStatus("EFI_SIMPLE_TEXT_INPUT_PROTOCOL.ReadKeyStroke", status)
		}

		var b []byte

		if k.UnicodeChar != 0 {
			b = buf[:utf8.EncodeRune(buf[:], rune(k.UnicodeChar))]
		} else if seq, ok := scanSequences[k.ScanCode]; ok {
			b = []byte(seq)
		}

		i := copy(p[n:], b)
		n += i

		if i < len(b) {
			c.pending = append(c.pending, b[i:]...)
		}
	}

	return
}

// Write data from buffer to console, UTF-8 input is converted to UCS-2 with
// characters outside the Basic Multilingual Plane replaced.
//
// Characters which cannot be rendered by the firmware are silently dropped.
func (c *Console) Write(p []byte) (n int, err error) {
	var s []uint16
	var done int

	if err = c.available("EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.OutputString"); err != nil {
		return
	}

	flush := func() error {
		if len(s) == 0 {
			return nil
		}

		status := c.Output(s)
		s = s[:0]

		if status.IsError() {
			return parseStatus("EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.OutputString", status)
		}

		n = done

		return nil
	}

	for i := 0; i < len(p); {
		r, size := utf8.DecodeRune(p[i:])
		i += size

		switch {
		case r == '\t' && c.ReplaceTabs > 0:
			for j := 0; j < c.ReplaceTabs; j++ {
				s = append(s, ' ')
			}
		case r == '\n' && c.ForceLine:
			s = append(s, '\r', '\n')
		case r > 0xffff:
			s = append(s, utf8.RuneError)
		default:
			s = append(s, uint16(r))
		}

		done = i

		if len(s) >= outputChunkSize {
			if err = flush(); err != nil {
				return
			}
		}
	}

	if err = flush(); err != nil {
		return
	}

	return len(p), nil
}

// Reset calls EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.Reset().
func (c *Console) Reset() (err error) {
	const op = "EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.Reset"

	if err = c.available(op); err != nil || c.Out == nil {
		return
	}

	return parseStatus(op, c.Out.Reset(false))
}

// ClearScreen calls EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.ClearScreen().
func (c *Console) ClearScreen() (err error) {
	const op = "EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.ClearScreen"

	if err = c.available(op); err != nil || c.Out == nil {
		return
	}

	return parseStatus(op, c.Out.ClearScreen())
}

// SetColor calls EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.SetAttribute(), only the
// first eight colors are valid as background.
func (c *Console) SetColor(fg int, bg int) (err error) {
	const op = "EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.SetAttribute"

	if fg < Black || fg > White || bg < Black || bg > LightGray {
		return fmt.Errorf("invalid color (%d, %d)", fg, bg)
	}

	if err = c.available(op); err != nil || c.Out == nil {
		return
	}

	return parseStatus(op, c.Out.SetAttribute(uint64(fg|bg<<4)))
}

// SetCursorPosition calls EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.SetCursorPosition().
func (c *Console) SetCursorPosition(col int, row int) (err error) {
	const op = "EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.SetCursorPosition"

	if err = c.available(op); err != nil || c.Out == nil {
		return
	}

	return parseStatus(op, c.Out.SetCursorPosition(uint64(col), uint64(row)))
}

// EnableCursor calls EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.EnableCursor().
func (c *Console) EnableCursor(visible bool) (err error) {
	const op = "EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.EnableCursor"

	if err = c.available(op); err != nil || c.Out == nil {
		return
	}

	return parseStatus(op, c.Out.EnableCursor(visible))
}

// QueryMode calls EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.QueryMode().
func (c *Console) QueryMode(mode int) (cols int, rows int, err error) {
	const op = "EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.QueryMode"

	var x, y uint64

	if err = c.available(op); err != nil {
		return
	}

	if c.Out == nil {
		return 0, 0, errors.New("no output protocol")
	}

	if err = parseStatus(op, c.Out.QueryMode(uint64(mode), &x, &y)); err != nil {
		return
	}

	return int(x), int(y), nil
}

// TestString calls EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.TestString() and returns
// whether all characters of the argument string can be rendered.
func (c *Console) TestString(str string) (ok bool, err error) {
	const op = "EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.TestString"

	if err = c.available(op); err != nil {
		return
	}

	if c.Out == nil {
		return false, errors.New("no output protocol")
	}

	switch status := c.Out.TestString(toUTF16(str)); status {
	case EFI_SUCCESS:
		return true, nil
	case EFI_UNSUPPORTED:
		return false, nil
	default:
		return false, parseStatus(op, status)
	}
}
