// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var guidPattern = regexp.MustCompile(`^[[:xdigit:]]{8}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{12}$`)

// GUID represents an EFI GUID in its in-memory layout, where the first three
// registry format fields are stored little-endian.
type GUID [16]byte

// ParseGUID parses a GUID in registry format
// (xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx).
func ParseGUID(s string) (g GUID, err error) {
	if !guidPattern.MatchString(s) {
		return GUID{}, fmt.Errorf("invalid GUID format: %q", s)
	}

	if _, err = hex.Decode(g[:], []byte(strings.ReplaceAll(s, "-", ""))); err != nil {
		return GUID{}, err
	}

	// registry format fields are big-endian
	binary.LittleEndian.PutUint32(g[0:4], binary.BigEndian.Uint32(g[0:4]))
	binary.LittleEndian.PutUint16(g[4:6], binary.BigEndian.Uint16(g[4:6]))
	binary.LittleEndian.PutUint16(g[6:8], binary.BigEndian.Uint16(g[6:8]))

	return
}

// MustParseGUID is like [ParseGUID] but panics on error, it is meant for
// package level declarations.
func MustParseGUID(s string) GUID {
	g, err := ParseGUID(s)

	if err != nil {
		panic(err)
	}

	return g
}

// String returns the GUID in registry format.
// See: https://uefi.org/specs/UEFI/2.10/Apx_A_GUID_and_Time_Formats.html
func (g GUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%x-%x",
		binary.LittleEndian.Uint32(g[0:4]),
		binary.LittleEndian.Uint16(g[4:6]),
		binary.LittleEndian.Uint16(g[6:8]),
		g[8:10],
		g[10:])
}

// MarshalText implements [encoding.TextMarshaler].
func (g GUID) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (g *GUID) UnmarshalText(text []byte) (err error) {
	*g, err = ParseGUID(string(text))
	return
}
