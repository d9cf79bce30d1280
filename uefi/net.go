// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"net"
)

const (
	EFI_SIMPLE_NETWORK_PROTOCOL_REVISION = 0x00010000

	EFI_SIMPLE_NETWORK_RECEIVE_INTERRUPT  = 0x01
	EFI_SIMPLE_NETWORK_TRANSMIT_INTERRUPT = 0x02
)

// EFI Simple Network Protocol offsets
const (
	start      = 0x08
	stop       = 0x10
	initialize = 0x18
	getStatus  = 0x58
	transmit   = 0x60
	receive    = 0x68
)

// maximum number of EFI_SIMPLE_NETWORK.GetStatus() polls for transmit
// completion
const maxTransmitPolls = 1 << 20

// SimpleNetworkProtocol represents the EFI Simple Network Protocol layout.
type SimpleNetworkProtocol struct {
	Revision       uint64
	Start          uint64
	Stop           uint64
	Initialize     uint64
	Reset          uint64
	Shutdown       uint64
	ReceiveFilters uint64
	StationAddress uint64
	Statistics     uint64
	MCastIPtoMAC   uint64
	NvData         uint64
	GetStatus      uint64
	Transmit       uint64
	Receive        uint64
	WaitForPacket  uint64
	Mode           uint64
}

// GUID returns the EFI Simple Network Protocol identifier.
func (*SimpleNetworkProtocol) GUID() GUID {
	return EFI_SIMPLE_NETWORK_PROTOCOL_GUID
}

// SimpleNetworkMode represents an EFI_SIMPLE_NETWORK_MODE instance.
type SimpleNetworkMode struct {
	State                 uint32
	HwAddressSize         uint32
	MediaHeaderSize       uint32
	MaxPacketSize         uint32
	NvRamSize             uint32
	NvRamAccessSize       uint32
	ReceiveFilterMask     uint32
	ReceiveFilterSetting  uint32
	MaxMCastFilterCount   uint32
	MCastFilterCount      uint32
	MCastFilter           [16][32]byte
	CurrentAddress        [32]byte
	BroadcastAddress      [32]byte
	PermanentAddress      [32]byte
	IfType                uint8
	MacAddressChangeable  bool
	MultipleTxSupported   bool
	MediaPresentSupported bool
	MediaPresent          bool
}

// SimpleNetwork represents an opened EFI Simple Network Protocol instance.
type SimpleNetwork struct {
	*Opened[SimpleNetworkProtocol]
}

// SimpleNetwork opens the EFI Simple Network Protocol on the first handle
// supporting it, the instance must be released with Close().
func (d *Directory) SimpleNetwork() (sn *SimpleNetwork, err error) {
	handles, err := d.LocateHandles(EFI_SIMPLE_NETWORK_PROTOCOL_GUID)

	if err != nil {
		return
	}

	if len(handles) == 0 {
		return nil, ErrNotFound
	}

	p, err := OpenProtocol[SimpleNetworkProtocol](d, handles[0], OpenByHandleProtocol)

	if err != nil {
		return
	}

	return &SimpleNetwork{p}, nil
}

func (sn *SimpleNetwork) call(op string, offset uint64, args ...uint64) (status Status, err error) {
	if status, err = sn.Call(offset, append([]uint64{sn.Address()}, args...)...); err != nil {
		return
	}

	return status, parseStatus(op, status)
}

// Mode returns the EFI Simple Network Protocol mode.
func (sn *SimpleNetwork) Mode() (m *SimpleNetworkMode, err error) {
	m = &SimpleNetworkMode{}

	if err = sn.Refresh(); err != nil {
		return
	}

	if err = decode(sn.dir.fw, m, sn.Interface.Mode); err != nil {
		return nil, err
	}

	return
}

// MAC returns the interface current hardware address.
func (sn *SimpleNetwork) MAC() (mac net.HardwareAddr, err error) {
	m, err := sn.Mode()

	if err != nil {
		return
	}

	size := min(int(m.HwAddressSize), len(m.CurrentAddress))

	return net.HardwareAddr(m.CurrentAddress[:size]), nil
}

// Start calls EFI_SIMPLE_NETWORK.Start()
func (sn *SimpleNetwork) Start() (err error) {
	status, err := sn.call("EFI_SIMPLE_NETWORK.Start", start)

	if status == EFI_ALREADY_STARTED {
		return nil
	}

	return
}

// Stop calls EFI_SIMPLE_NETWORK.Stop()
func (sn *SimpleNetwork) Stop() (err error) {
	_, err = sn.call("EFI_SIMPLE_NETWORK.Stop", stop)
	return
}

// Initialize calls EFI_SIMPLE_NETWORK.Initialize()
func (sn *SimpleNetwork) Initialize() (err error) {
	_, err = sn.call("EFI_SIMPLE_NETWORK.Initialize", initialize, 0, 0)
	return
}

// GetStatus calls EFI_SIMPLE_NETWORK.GetStatus()
func (sn *SimpleNetwork) GetStatus() (interruptStatus uint32, txBuf uint64, err error) {
	var buf [2]uint64

	_, err = sn.call("EFI_SIMPLE_NETWORK.GetStatus", getStatus,
		ptrval(buf[0:1]),
		ptrval(buf[1:2]),
	)

	return uint32(buf[0]), buf[1], err
}

// Transmit calls EFI_SIMPLE_NETWORK.Transmit(), the function waits for
// EFI_SIMPLE_NETWORK.GetStatus() to report a transmit interrupt before
// returning.
func (sn *SimpleNetwork) Transmit(buf []byte) (err error) {
	var interruptStatus uint32

	if _, err = sn.call("EFI_SIMPLE_NETWORK.Transmit", transmit,
		0,
		uint64(len(buf)),
		ptrval(buf),
		0,
		0,
		0,
	); err != nil {
		return
	}

	for i := 0; i < maxTransmitPolls; i++ {
		if interruptStatus, _, err = sn.GetStatus(); err != nil {
			return
		}

		if interruptStatus&EFI_SIMPLE_NETWORK_TRANSMIT_INTERRUPT != 0 {
			return
		}
	}

	return statusError("EFI_SIMPLE_NETWORK.Transmit", EFI_TIMEOUT, nil)
}

// Receive calls EFI_SIMPLE_NETWORK.Receive()
func (sn *SimpleNetwork) Receive(buf []byte) (n int, err error) {
	size := []uint64{uint64(len(buf))}

	status, err := sn.call("EFI_SIMPLE_NETWORK.Receive", receive,
		0,
		ptrval(size),
		ptrval(buf),
		0,
		0,
		0,
	)

	if status == EFI_NOT_READY {
		return 0, nil
	}

	return int(size[0]), err
}
