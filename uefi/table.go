// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// EFI Table Header signatures
const (
	SystemTableSignature     = 0x5453595320494249 // IBI SYST
	BootServicesSignature    = 0x56524553544f4f42 // BOOTSERV
	RuntimeServicesSignature = 0x56524553544e5552 // RUNTSERV
)

const (
	// MinRevision is the minimum supported EFI table revision (2.0).
	MinRevision = 2<<16 | 0

	maxHeaderSize = 4096
	crc32Offset   = 16

	// function table sizes up to their last used member
	SystemTableSize     = 0x78
	BootServicesSize    = 0x178
	RuntimeServicesSize = 0x88
)

// TableHeader represents the data structure that precedes all of the standard
// EFI table types.
type TableHeader struct {
	Signature  uint64
	Revision   uint32
	HeaderSize uint32
	CRC32      uint32
	Reserved   uint32
}

// SystemTable represents the EFI System Table, containing pointers to the
// runtime and boot services tables.
type SystemTable struct {
	Header               TableHeader
	FirmwareVendor       uint64
	FirmwareRevision     uint32
	_                    uint32
	ConsoleInHandle      uint64
	ConIn                uint64
	ConsoleOutHandle     uint64
	ConOut               uint64
	StandardErrorHandle  uint64
	StdErr               uint64
	RuntimeServices      uint64
	BootServices         uint64
	NumberOfTableEntries uint64
	ConfigurationTable   uint64
}

// RevisionString returns the table header revision in major.minor format.
func (h *TableHeader) RevisionString() string {
	major := h.Revision >> 16
	minor := h.Revision & 0xffff

	if minor%10 == 0 {
		return fmt.Sprintf("%d.%d", major, minor/10)
	}

	return fmt.Sprintf("%d.%d.%d", major, minor/10, minor%10)
}

// Checksum returns the CRC32 of a table header area with its CRC32 field
// zeroed.
func Checksum(buf []byte) uint32 {
	b := make([]byte, len(buf))
	copy(b, buf)

	if len(b) >= crc32Offset+4 {
		binary.LittleEndian.PutUint32(b[crc32Offset:], 0)
	}

	return crc32.ChecksumIEEE(b)
}

// ValidateTable verifies the EFI table header at addr against the expected
// signature, the minimum supported revision, a minimum size and its CRC32.
//
// The header checksum is the EFI_TABLE_HEADER CRC32 (IEEE polynomial over
// HeaderSize bytes with the CRC32 field zeroed), not the byte sum to zero
// used by ACPI and SMBIOS tables: firmware seals its tables this way and a
// byte sum check would reject every valid EFI System Table.
func ValidateTable(fw Firmware, addr uint64, signature uint64, size int) (h *TableHeader, err error) {
	var buf []byte

	name := tableName(signature)

	if addr == 0 {
		return nil, fmt.Errorf("%w (%s), null pointer", ErrInvalidTable, name)
	}

	h = &TableHeader{}

	if err = decode(fw, h, addr); err != nil {
		return nil, fmt.Errorf("%w (%s), %v", ErrInvalidTable, name, err)
	}

	if h.Signature != signature {
		return nil, fmt.Errorf("%w (%s), invalid signature %#x", ErrInvalidTable, name, h.Signature)
	}

	if h.Revision < MinRevision {
		return nil, fmt.Errorf("%w (%s), unsupported revision %#x", ErrInvalidTable, name, h.Revision)
	}

	if h.HeaderSize < uint32(size) || h.HeaderSize > maxHeaderSize {
		return nil, fmt.Errorf("%w (%s), invalid size %d", ErrInvalidTable, name, h.HeaderSize)
	}

	if buf, err = fw.Bytes(addr, int(h.HeaderSize)); err != nil {
		return nil, fmt.Errorf("%w (%s), %v", ErrInvalidTable, name, err)
	}

	if sum := Checksum(buf); sum != h.CRC32 {
		return nil, fmt.Errorf("%w (%s), checksum mismatch (%#x != %#x)", ErrInvalidTable, name, sum, h.CRC32)
	}

	return
}

func tableName(signature uint64) string {
	switch signature {
	case SystemTableSignature:
		return "EFI System Table"
	case BootServicesSignature:
		return "EFI Boot Services"
	case RuntimeServicesSignature:
		return "EFI Runtime Services"
	default:
		return "EFI Table"
	}
}
