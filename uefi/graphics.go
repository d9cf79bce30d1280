// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
)

// EFI Graphics Output Protocol offsets
const (
	blt = 0x10
)

type BltOperation int

// EFI_GRAPHICS_OUTPUT_BLT_OPERATION
const (
	EfiBltVideoFill BltOperation = iota
	EfiBltVideoToBltBuffer
	EfiBltBufferToVideo
	EfiBltVideoToVideo
	EfiGraphicsOutputBltOperationMax
)

// GraphicsOutputProtocol represents the EFI Graphics Output Protocol layout.
type GraphicsOutputProtocol struct {
	QueryMode uint64
	SetMode   uint64
	Blt       uint64
	Mode      uint64
}

// GUID returns the EFI Graphics Output Protocol identifier.
func (*GraphicsOutputProtocol) GUID() GUID {
	return EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID
}

// ModeInformation represents an EFI Graphics Output Mode Information instance.
type ModeInformation struct {
	Version              uint32
	HorizontalResolution uint32
	VerticalResolution   uint32
	PixelFormat          uint32
	RedMask              uint32
	GreenMask            uint32
	BlueMask             uint32
	ReservedMask         uint32
	PixelsPerScanLine    uint32
}

// ProtocolMode represents an EFI Graphics Output Protocol Mode instance.
type ProtocolMode struct {
	MaxMode         uint32
	Mode            uint32
	Info            uint64
	SizeOfInfo      uint64
	FrameBufferBase uint64
	FrameBufferSize uint64
}

// GraphicsOutput represents an opened EFI Graphics Output Protocol instance.
type GraphicsOutput struct {
	*Opened[GraphicsOutputProtocol]
}

// GraphicsOutput opens the EFI Graphics Output Protocol on the first handle
// supporting it, the instance must be released with Close().
func (d *Directory) GraphicsOutput() (gop *GraphicsOutput, err error) {
	handles, err := d.LocateHandles(EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID)

	if err != nil {
		return
	}

	if len(handles) == 0 {
		return nil, ErrNotFound
	}

	p, err := OpenProtocol[GraphicsOutputProtocol](d, handles[0], OpenByHandleProtocol)

	if err != nil {
		return
	}

	return &GraphicsOutput{p}, nil
}

// GetMode returns the EFI Graphics Output Mode instance.
func (gop *GraphicsOutput) GetMode() (pm *ProtocolMode, err error) {
	pm = &ProtocolMode{}

	if err = gop.Refresh(); err != nil {
		return
	}

	if err = decode(gop.dir.fw, pm, gop.Interface.Mode); err != nil {
		return nil, err
	}

	return
}

// GetInfo returns the current EFI Graphics Output Mode information instance.
func (gop *GraphicsOutput) GetInfo() (m *ModeInformation, err error) {
	pm, err := gop.GetMode()

	if err != nil {
		return
	}

	m = &ModeInformation{}

	if err = decode(gop.dir.fw, m, pm.Info); err != nil {
		return nil, err
	}

	return
}

// Blt calls EFI_GRAPHICS_OUTPUT_PROTCOL.Blt().
func (gop *GraphicsOutput) Blt(buf []byte, op BltOperation, srcX, srcY, dstX, dstY, width, height, delta uint64) (err error) {
	if op < EfiBltVideoFill || op >= EfiGraphicsOutputBltOperationMax {
		return errors.New("invalid operation")
	}

	status, err := gop.Call(blt,
		gop.Address(),
		ptrval(buf),
		uint64(op),
		srcX,
		srcY,
		dstX,
		dstY,
		width,
		height,
		delta,
	)

	if err != nil {
		return
	}

	return parseStatus("EFI_GRAPHICS_OUTPUT_PROTOCOL.Blt", status)
}
