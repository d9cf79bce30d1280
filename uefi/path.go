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
)

// maximum number of nodes walked within a single device path
const maxDevicePathNodes = 32

// Device path node types
const (
	HardwareDevicePath = 0x01
	MediaDevicePath    = 0x04
	EndDevicePath      = 0x7f

	// Media Device Path sub-types
	FilePathSubType = 0x04
	// End Device Path sub-types
	EndEntireSubType = 0xff
)

// DevicePathNode represents an EFI Generic Device Path Node structure.
type DevicePathNode struct {
	Type    uint8
	SubType uint8
	Length  uint16
}

// GUID returns the EFI Device Path Protocol identifier, the protocol
// interface is the first node of the path.
func (*DevicePathNode) GUID() GUID {
	return EFI_DEVICE_PATH_PROTOCOL_GUID
}

// Bytes converts the descriptor structure to byte array format.
func (d *DevicePathNode) Bytes() []byte {
	buf := new(bytes.Buffer)

	binary.Write(buf, binary.LittleEndian, d.Type)
	binary.Write(buf, binary.LittleEndian, d.SubType)
	binary.Write(buf, binary.LittleEndian, d.Length)

	return buf.Bytes()
}

// End returns whether the node terminates the device path.
func (d *DevicePathNode) End() bool {
	return d.Type == EndDevicePath && d.SubType == EndEntireSubType
}

// DevicePath represents an EFI Device Path Protocol node.
type DevicePath struct {
	DevicePathNode
	Data []byte
}

// Bytes converts the descriptor structure to byte array format.
func (d *DevicePath) Bytes() []byte {
	return append(d.DevicePathNode.Bytes(), d.Data...)
}

// DevicePath returns the nodes of the EFI Device Path Protocol installed on
// the argument handle, excluding the end node, and their binary
// representation, including it.
//
// The path is parsed here, rather than with firmware utilities, as firmware
// does not handle invalid device paths gracefully.
func (d *Directory) DevicePath(h Handle) (nodes []*DevicePath, desc []byte, err error) {
	err = WithProtocol(d, h, OpenGetProtocol, func(p *Opened[DevicePathNode]) (err error) {
		addr := p.Address()

		for i := 0; i <= maxDevicePathNodes; i++ {
			if i == maxDevicePathNodes {
				return errors.New("device path nodes limit exceeded")
			}

			node := &DevicePathNode{}

			if err = decode(d.fw, node, addr); err != nil {
				return
			}

			if node.Length < 4 {
				return fmt.Errorf("invalid device path node length (%d)", node.Length)
			}

			buf, err := d.fw.Bytes(addr, int(node.Length))

			if err != nil {
				return err
			}

			desc = append(desc, buf...)
			addr += uint64(node.Length)

			if node.End() {
				return nil
			}

			nodes = append(nodes, &DevicePath{
				DevicePathNode: *node,
				Data:           bytes.Clone(buf[4:]),
			})
		}

		return
	})

	if err != nil {
		return nil, nil, err
	}

	return
}

// FilePath returns the full EFI Device Path associated with the named file,
// suitable for [BootServices.LoadImageFile].
func (root *FS) FilePath(name string) (desc []byte, err error) {
	var pathName []byte

	nodes, _, err := root.dir.DevicePath(root.Handle())

	if err != nil {
		return
	}

	for _, c := range toUTF16(filePath(name)) {
		pathName = binary.LittleEndian.AppendUint16(pathName, c)
	}

	for _, node := range nodes {
		desc = append(desc, node.Bytes()...)
	}

	file := &DevicePath{
		DevicePathNode: DevicePathNode{
			Type:    MediaDevicePath,
			SubType: FilePathSubType,
			Length:  uint16(4 + len(pathName)),
		},
		Data: pathName,
	}

	end := &DevicePathNode{
		Type:    EndDevicePath,
		SubType: EndEntireSubType,
		Length:  4,
	}

	desc = append(desc, file.Bytes()...)
	desc = append(desc, end.Bytes()...)

	return
}
