// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
	"unsafe"
)

func marshalBinary(data any) (buf []byte, err error) {
	b := new(bytes.Buffer)
	err = binary.Write(b, binary.LittleEndian, data)
	return b.Bytes(), err
}

func unmarshalBinary(buf []byte, data any) (err error) {
	_, err = binary.Decode(buf, binary.LittleEndian, data)
	return
}

// decode reads a fixed-size data structure from firmware memory.
func decode(fw Firmware, data any, addr uint64) (err error) {
	if addr == 0 {
		return errors.New("invalid address")
	}

	n := binary.Size(data)

	if n <= 0 {
		return fmt.Errorf("invalid layout %T", data)
	}

	buf, err := fw.Bytes(addr, n)

	if err != nil {
		return
	}

	return unmarshalBinary(buf, data)
}

// ptrval returns the address of the first element of a Go buffer handed to
// firmware, zero when empty.
func ptrval[T any](buf []T) uint64 {
	if len(buf) == 0 {
		return 0
	}

	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(buf))))
}

// toUTF16 converts a string to a NUL terminated UCS-2 one.
func toUTF16(s string) []uint16 {
	return append(utf16.Encode([]rune(s)), 0x00)
}

// fromUTF16 converts a, possibly NUL terminated, UCS-2 string.
func fromUTF16(s []uint16) string {
	for i, c := range s {
		if c == 0x00 {
			s = s[:i]
			break
		}
	}

	return string(utf16.Decode(s))
}

// readString reads a NUL terminated UCS-2 string, of at most max
// characters, from firmware memory.
func readString(fw Firmware, addr uint64, max int) (s string, err error) {
	var buf []byte
	var r []uint16

	if addr == 0 {
		return
	}

	if buf, err = fw.Bytes(addr, max*2); err != nil {
		return
	}

	for i := 0; i+1 < len(buf); i += 2 {
		c := binary.LittleEndian.Uint16(buf[i : i+2])

		if c == 0x00 {
			break
		}

		r = append(r, c)
	}

	return string(utf16.Decode(r)), nil
}
