// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/uefitest"
)

type nic struct {
	started bool
	tx      [][]byte
}

// put emulates a firmware write to a caller provided pointer.
func put(addr uint64, val uint64) {
	*(*uint64)(unsafe.Pointer(uintptr(addr))) = val
}

func installNetwork(fw *uefitest.Firmware, n *nic) {
	m := &uefi.SimpleNetworkMode{
		HwAddressSize: 6,
		MaxPacketSize: 1500,
		MediaPresent:  true,
	}

	copy(m.CurrentAddress[:], []byte{0x1a, 0x55, 0x89, 0xa2, 0x69, 0x41})

	iface := fw.Write(&uefi.SimpleNetworkProtocol{
		Revision: uefi.EFI_SIMPLE_NETWORK_PROTOCOL_REVISION,
		Start: fw.Func(func(args ...uint64) uefi.Status {
			if n.started {
				return uefi.EFI_ALREADY_STARTED
			}

			n.started = true

			return uefi.EFI_SUCCESS
		}),
		GetStatus: fw.Func(func(args ...uint64) uefi.Status {
			put(args[1], uefi.EFI_SIMPLE_NETWORK_TRANSMIT_INTERRUPT)
			return uefi.EFI_SUCCESS
		}),
		Transmit: fw.Func(func(args ...uint64) uefi.Status {
			buf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(args[3]))), args[2])
			n.tx = append(n.tx, bytes.Clone(buf))
			return uefi.EFI_SUCCESS
		}),
		Receive: fw.Func(func(args ...uint64) uefi.Status {
			return uefi.EFI_NOT_READY
		}),
		Mode: fw.Write(m),
	})

	fw.InstallProtocol(0, uefi.EFI_SIMPLE_NETWORK_PROTOCOL_GUID, iface)
}

func TestSimpleNetwork(t *testing.T) {
	n := &nic{}

	fw, s := open(t)
	installNetwork(fw, n)

	sn, err := s.Directory.SimpleNetwork()

	if err != nil {
		t.Fatal(err)
	}

	defer sn.Close()

	mac, err := sn.MAC()

	if err != nil {
		t.Fatal(err)
	}

	if mac.String() != "1a:55:89:a2:69:41" {
		t.Fatalf("unexpected MAC %s", mac)
	}

	for i := 0; i < 2; i++ {
		if err = sn.Start(); err != nil {
			t.Fatal(err)
		}
	}

	if err = sn.Transmit([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	if len(n.tx) != 1 || !bytes.Equal(n.tx[0], []byte{1, 2, 3}) {
		t.Fatalf("unexpected frames %v", n.tx)
	}

	buf := make([]byte, 1500)

	if size, err := sn.Receive(buf); err != nil || size != 0 {
		t.Fatalf("unexpected result %d, %v", size, err)
	}

	// unset members are unsupported
	if err = sn.Stop(); err == nil {
		t.Fatal("unexpected success")
	}
}
