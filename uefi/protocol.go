// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const maxLocateAttempts = 4

// SearchType represents an EFI_LOCATE_SEARCH_TYPE.
type SearchType uint32

// EFI_LOCATE_SEARCH_TYPE
const (
	SearchAllHandles SearchType = iota
	SearchByRegisterNotify
	SearchByProtocol
)

// OpenAttribute represents EFI_BOOT_SERVICES.OpenProtocol() attributes.
type OpenAttribute uint32

// EFI_OPEN_PROTOCOL attributes
const (
	OpenByHandleProtocol  OpenAttribute = 0x00000001
	OpenGetProtocol       OpenAttribute = 0x00000002
	OpenTestProtocol      OpenAttribute = 0x00000004
	OpenByChildController OpenAttribute = 0x00000008
	OpenByDriver          OpenAttribute = 0x00000010
	OpenExclusive         OpenAttribute = 0x00000020
)

func (attr OpenAttribute) valid() bool {
	switch attr {
	case OpenByHandleProtocol, OpenGetProtocol, OpenTestProtocol,
		OpenByChildController, OpenByDriver, OpenExclusive,
		OpenByDriver | OpenExclusive:
		return true
	}

	return false
}

// Directory represents the EFI handle database, giving access to handles and
// the protocols installed on them.
type Directory struct {
	fw    Firmware
	state *bootState
	boot  *BootServices
}

func (d *Directory) locate(t SearchType, guid *GUID) (handles []Handle, err error) {
	const op = "EFI_BOOT_SERVICES.LocateHandle"

	var size uint64

	b, err := d.state.boot(op)

	if err != nil {
		return
	}

	for i := 0; i < maxLocateAttempts; i++ {
		status := b.LocateHandle(t, guid, &size, handles)

		switch status {
		case EFI_NOT_FOUND:
			return []Handle{}, nil
		case EFI_BUFFER_TOO_SMALL:
			handles = make([]Handle, size/8)
			continue
		}

		if err = parseStatus(op, status); err != nil {
			return nil, err
		}

		n := int(size / 8)

		if n > len(handles) {
			return nil, statusError(op, EFI_BAD_BUFFER_SIZE, ErrFirmware)
		}

		return handles[:n], nil
	}

	return nil, statusError(op, EFI_BUFFER_TOO_SMALL, ErrFirmware)
}

// LocateHandles returns, in firmware order, all handles supporting the
// argument protocol. An empty result is not an error.
func (d *Directory) LocateHandles(guid GUID) ([]Handle, error) {
	return d.locate(SearchByProtocol, &guid)
}

// AllHandles returns, in firmware order, all handles in the handle database.
func (d *Directory) AllHandles() ([]Handle, error) {
	return d.locate(SearchAllHandles, nil)
}

// LocateHandle returns the only handle supporting the argument protocol,
// [ErrNotFound] or [ErrMultipleHandles] are returned otherwise.
func (d *Directory) LocateHandle(guid GUID) (h Handle, err error) {
	handles, err := d.LocateHandles(guid)

	if err != nil {
		return
	}

	switch len(handles) {
	case 0:
		return 0, fmt.Errorf("%s, %w", Name(guid), ErrNotFound)
	case 1:
		return handles[0], nil
	default:
		return 0, fmt.Errorf("%s, %w (%d)", Name(guid), ErrMultipleHandles, len(handles))
	}
}

// ProtocolsPerHandle calls EFI_BOOT_SERVICES.ProtocolsPerHandle() and returns
// the protocols installed on the argument handle.
func (d *Directory) ProtocolsPerHandle(h Handle) (guids []GUID, err error) {
	const op = "EFI_BOOT_SERVICES.ProtocolsPerHandle"

	var addr uint64
	var count uint64
	var buf []byte

	b, err := d.state.boot(op)

	if err != nil {
		return
	}

	status := b.ProtocolsPerHandle(h, &addr, &count)

	if status == EFI_INVALID_PARAMETER {
		return nil, statusError(op, status, ErrNotFound)
	}

	if err = parseStatus(op, status); err != nil {
		return
	}

	if count == 0 {
		return
	}

	defer d.boot.FreePool(addr)

	if buf, err = d.fw.Bytes(addr, int(count*8)); err != nil {
		return
	}

	for i := 0; i < int(count); i++ {
		var guid GUID
		var g []byte

		ptr := binary.LittleEndian.Uint64(buf[i*8:])

		if g, err = d.fw.Bytes(ptr, len(guid)); err != nil {
			return nil, err
		}

		copy(guid[:], g)
		guids = append(guids, guid)
	}

	return
}

// LocateProtocol calls EFI_BOOT_SERVICES.LocateProtocol() and returns the
// address of the first matching protocol interface.
//
// The returned address is not tracked, [Directory.Open] should be preferred.
func (d *Directory) LocateProtocol(guid GUID) (addr uint64, err error) {
	const op = "EFI_BOOT_SERVICES.LocateProtocol"

	b, err := d.state.boot(op)

	if err != nil {
		return
	}

	status := b.LocateProtocol(guid, 0, &addr)

	return addr, parseStatus(op, status)
}

// Test returns whether the argument protocol is installed on the argument
// handle.
func (d *Directory) Test(h Handle, guid GUID) (ok bool, err error) {
	const op = "EFI_BOOT_SERVICES.OpenProtocol"

	b, err := d.state.boot(op)

	if err != nil {
		return
	}

	switch status := b.OpenProtocol(h, guid, nil, d.state.image, h, OpenTestProtocol); status {
	case EFI_SUCCESS:
		return true, nil
	case EFI_UNSUPPORTED:
		return false, nil
	default:
		return false, parseStatus(op, status)
	}
}

// InstallProtocol calls EFI_BOOT_SERVICES.InstallProtocolInterface(), a zero
// handle creates a new one.
func (d *Directory) InstallProtocol(h Handle, guid GUID, iface uint64) (_ Handle, err error) {
	const op = "EFI_BOOT_SERVICES.InstallProtocolInterface"

	b, err := d.state.boot(op)

	if err != nil {
		return
	}

	if err = parseStatus(op, b.InstallProtocolInterface(&h, guid, iface)); err != nil {
		return 0, err
	}

	return h, nil
}

// UninstallProtocol calls EFI_BOOT_SERVICES.UninstallProtocolInterface().
func (d *Directory) UninstallProtocol(h Handle, guid GUID, iface uint64) (err error) {
	const op = "EFI_BOOT_SERVICES.UninstallProtocolInterface"

	b, err := d.state.boot(op)

	if err != nil {
		return
	}

	return parseStatus(op, b.UninstallProtocolInterface(h, guid, iface))
}

// Open calls EFI_BOOT_SERVICES.OpenProtocol() on behalf of the running image
// and returns the opened protocol, which must be released with
// [OpenedProtocol.Close].
//
// Opening a protocol which is not installed returns
// [ErrUnsupportedProtocol], while conflicting with an outstanding exclusive
// open returns [ErrAccessDenied].
func (d *Directory) Open(h Handle, guid GUID, attr OpenAttribute) (p *OpenedProtocol, err error) {
	const op = "EFI_BOOT_SERVICES.OpenProtocol"

	var addr uint64
	var controller Handle

	b, err := d.state.boot(op)

	if err != nil {
		return
	}

	if !attr.valid() || attr == OpenTestProtocol {
		return nil, fmt.Errorf("%s, invalid attributes %#x", op, uint32(attr))
	}

	if attr&(OpenByDriver|OpenExclusive) != 0 && d.state.exclusive(h, guid) {
		return nil, fmt.Errorf("%s, %s on handle %#x, %w", op, Name(guid), h, ErrAccessDenied)
	}

	if attr&(OpenByChildController|OpenByDriver|OpenExclusive) != 0 {
		controller = h
	}

	switch status := b.OpenProtocol(h, guid, &addr, d.state.image, controller, attr); status {
	case EFI_SUCCESS:
	case EFI_UNSUPPORTED:
		return nil, statusError(op, status, ErrUnsupportedProtocol)
	case EFI_ACCESS_DENIED, EFI_ALREADY_STARTED:
		return nil, statusError(op, status, ErrAccessDenied)
	default:
		if err = statusError(op, status, ErrFirmware); err != nil {
			return
		}
	}

	p = &OpenedProtocol{
		handle:     h,
		guid:       guid,
		attr:       attr,
		controller: controller,
		addr:       addr,
		dir:        d,
	}

	d.state.track(p)

	return
}

// Outstanding returns the number of opened protocols not yet released.
func (d *Directory) Outstanding() int {
	return len(d.state.outstanding())
}

// errInvalidLayout is returned for protocol layouts which are not fixed-size.
var errInvalidLayout = errors.New("invalid protocol layout")
