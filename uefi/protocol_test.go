// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/uefitest"
)

type blt struct {
	op     uint64
	width  uint64
	height uint64
}

func installGraphics(fw *uefitest.Firmware, calls *[]blt) uefi.Handle {
	info := fw.Write(&uefi.ModeInformation{
		HorizontalResolution: 1024,
		VerticalResolution:   768,
		PixelFormat:          1,
		PixelsPerScanLine:    1024,
	})

	mode := fw.Write(&uefi.ProtocolMode{
		MaxMode:         1,
		Info:            info,
		SizeOfInfo:      36,
		FrameBufferBase: 0x80000000,
		FrameBufferSize: 1024 * 768 * 4,
	})

	fn := fw.Func(func(args ...uint64) uefi.Status {
		*calls = append(*calls, blt{op: args[2], width: args[7], height: args[8]})
		return uefi.EFI_SUCCESS
	})

	iface := fw.Write(&uefi.GraphicsOutputProtocol{
		Blt:  fn,
		Mode: mode,
	})

	return fw.InstallProtocol(0, uefi.EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID, iface)
}

func TestLocateHandles(t *testing.T) {
	fw, s := open(t)

	handles, err := s.Directory.LocateHandles(uefi.EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL_GUID)

	if err != nil {
		t.Fatal(err)
	}

	if len(handles) != 1 || uint64(handles[0]) != s.SystemTable.ConsoleOutHandle {
		t.Fatalf("unexpected handles %v", handles)
	}

	if handles, err = s.Directory.LocateHandles(uefi.EFI_BLOCK_IO_PROTOCOL_GUID); err != nil || len(handles) != 0 {
		t.Fatalf("unexpected result %v, %v", handles, err)
	}

	all, err := s.Directory.AllHandles()

	if err != nil {
		t.Fatal(err)
	}

	if len(all) != 3 || !slices.Contains(all, fw.ImageHandle) {
		t.Fatalf("unexpected handles %v", all)
	}
}

func TestLocateHandle(t *testing.T) {
	fw, s := open(t)

	if _, err := s.Directory.LocateHandle(uefi.EFI_RNG_PROTOCOL_GUID); !errors.Is(err, uefi.ErrNotFound) {
		t.Fatalf("unexpected error %v", err)
	}

	a := fw.InstallProtocol(0, uefi.EFI_RNG_PROTOCOL_GUID, fw.Alloc(16))

	h, err := s.Directory.LocateHandle(uefi.EFI_RNG_PROTOCOL_GUID)

	if err != nil {
		t.Fatal(err)
	}

	if h != a {
		t.Fatalf("unexpected handle %#x", h)
	}

	fw.InstallProtocol(0, uefi.EFI_RNG_PROTOCOL_GUID, fw.Alloc(16))

	if _, err := s.Directory.LocateHandle(uefi.EFI_RNG_PROTOCOL_GUID); !errors.Is(err, uefi.ErrMultipleHandles) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestProtocolsPerHandle(t *testing.T) {
	fw, s := open(t)

	fw.InstallProtocol(fw.ImageHandle, uefi.EFI_DEVICE_PATH_PROTOCOL_GUID, fw.Alloc(4))
	pools := fw.Pools()

	guids, err := s.Directory.ProtocolsPerHandle(fw.ImageHandle)

	if err != nil {
		t.Fatal(err)
	}

	if len(guids) != 2 || guids[0] != uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID || guids[1] != uefi.EFI_DEVICE_PATH_PROTOCOL_GUID {
		t.Fatalf("unexpected protocols %v", guids)
	}

	if fw.Pools() != pools {
		t.Fatal("protocol buffer should be released")
	}

	if _, err := s.Directory.ProtocolsPerHandle(0x1234); !errors.Is(err, uefi.ErrNotFound) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestProtocolTest(t *testing.T) {
	fw, s := open(t)

	ok, err := s.Directory.Test(fw.ImageHandle, uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID)

	if err != nil || !ok {
		t.Fatalf("unexpected result %v, %v", ok, err)
	}

	if ok, _ = s.Directory.Test(fw.ImageHandle, uefi.EFI_RNG_PROTOCOL_GUID); ok {
		t.Fatal("unexpected protocol")
	}

	if fw.OpenCount(fw.ImageHandle, uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID) != 0 {
		t.Fatal("test should not leave open records")
	}
}

func TestOpenClose(t *testing.T) {
	var calls []blt

	fw, s := open(t)
	h := installGraphics(fw, &calls)

	p, err := uefi.OpenProtocol[uefi.GraphicsOutputProtocol](s.Directory, h, uefi.OpenByHandleProtocol)

	if err != nil {
		t.Fatal(err)
	}

	if fw.OpenCount(h, uefi.EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID) != 1 || s.Directory.Outstanding() != 1 {
		t.Fatal("protocol should be outstanding")
	}

	if p.Interface.Mode == 0 || p.Address() == 0 {
		t.Fatal("invalid protocol interface")
	}

	p.Close()
	p.Close()

	if fw.OpenCount(h, uefi.EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID) != 0 || s.Directory.Outstanding() != 0 {
		t.Fatal("protocol should be released")
	}

	if p.Address() != 0 || !p.Closed() {
		t.Fatal("released protocol should not be addressable")
	}

	if err := p.Refresh(); !errors.Is(err, uefi.ErrClosed) {
		t.Fatalf("unexpected error %v", err)
	}

	if _, err := p.Call(0x10); !errors.Is(err, uefi.ErrClosed) {
		t.Fatalf("unexpected error %v", err)
	}

	if len(calls) != 0 {
		t.Fatal("unexpected call")
	}
}

func TestOpenUnsupported(t *testing.T) {
	fw, s := open(t)

	_, err := uefi.OpenProtocol[uefi.GraphicsOutputProtocol](s.Directory, fw.ImageHandle, uefi.OpenGetProtocol)

	if !errors.Is(err, uefi.ErrUnsupportedProtocol) {
		t.Fatalf("unexpected error %v", err)
	}

	if _, err = s.Directory.Open(fw.ImageHandle, uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID, uefi.OpenTestProtocol); err == nil {
		t.Fatal("test attribute should be rejected")
	}

	if s.Directory.Outstanding() != 0 {
		t.Fatal("unexpected outstanding protocol")
	}
}

func TestOpenExclusive(t *testing.T) {
	var calls []blt

	fw, s := open(t)
	h := installGraphics(fw, &calls)
	guid := uefi.EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID

	p, err := s.Directory.Open(h, guid, uefi.OpenExclusive)

	if err != nil {
		t.Fatal(err)
	}

	if _, err = s.Directory.Open(h, guid, uefi.OpenByDriver); !errors.Is(err, uefi.ErrAccessDenied) {
		t.Fatalf("unexpected error %v", err)
	}

	if fw.OpenCount(h, guid) != 1 {
		t.Fatal("conflicting open should not reach firmware")
	}

	// non-exclusive access is still possible
	q, err := s.Directory.Open(h, guid, uefi.OpenByHandleProtocol)

	if err != nil {
		t.Fatal(err)
	}

	p.Close()

	r, err := s.Directory.Open(h, guid, uefi.OpenByDriver)

	if err != nil {
		t.Fatal(err)
	}

	if fw.OpenCount(h, guid) != 2 {
		t.Fatalf("unexpected open count %d", fw.OpenCount(h, guid))
	}

	r.Close()
	q.Close()

	if fw.OpenCount(h, guid) != 0 {
		t.Fatalf("unexpected open count %d", fw.OpenCount(h, guid))
	}
}

func TestOpenForeignDriver(t *testing.T) {
	var calls []blt
	var iface uint64

	fw, s := open(t)
	h := installGraphics(fw, &calls)
	guid := uefi.EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID

	agent := uefi.Handle(s.SystemTable.ConsoleOutHandle)

	if status := fw.BootTable(0).OpenProtocol(h, guid, &iface, agent, h, uefi.OpenByDriver); status != uefi.EFI_SUCCESS {
		t.Fatal(status)
	}

	_, err := s.Directory.Open(h, guid, uefi.OpenExclusive)

	if !errors.Is(err, uefi.ErrAccessDenied) {
		t.Fatalf("unexpected error %v", err)
	}

	if status, _ := uefi.StatusOf(err); status != uefi.EFI_ACCESS_DENIED {
		t.Fatalf("unexpected status %v", status)
	}
}

func TestWithProtocol(t *testing.T) {
	fw, s := open(t)
	guid := uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID
	errTest := errors.New("test")

	err := uefi.WithProtocol(s.Directory, fw.ImageHandle, uefi.OpenGetProtocol, func(p *uefi.Opened[uefi.LoadedImage]) error {
		if fw.OpenCount(fw.ImageHandle, guid) != 1 {
			t.Error("protocol should be open")
		}

		return errTest
	})

	if !errors.Is(err, errTest) {
		t.Fatalf("unexpected error %v", err)
	}

	if fw.OpenCount(fw.ImageHandle, guid) != 0 {
		t.Fatal("protocol should be released on error")
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("missing panic")
			}
		}()

		uefi.WithProtocol(s.Directory, fw.ImageHandle, uefi.OpenGetProtocol, func(p *uefi.Opened[uefi.LoadedImage]) error {
			panic("test")
		})
	}()

	if fw.OpenCount(fw.ImageHandle, guid) != 0 || s.Directory.Outstanding() != 0 {
		t.Fatal("protocol should be released on panic")
	}
}

func TestOpenSingle(t *testing.T) {
	fw, s := open(t)

	image, err := uefi.OpenSingle[uefi.LoadedImage](s.Directory, uefi.OpenGetProtocol)

	if err != nil {
		t.Fatal(err)
	}

	defer image.Close()

	if image.Handle() != fw.ImageHandle || image.Interface.SystemTable != fw.SystemTable {
		t.Fatal("unexpected protocol instance")
	}

	if _, err := uefi.OpenSingle[uefi.GraphicsOutputProtocol](s.Directory, uefi.OpenGetProtocol); !errors.Is(err, uefi.ErrNotFound) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestInstallProtocol(t *testing.T) {
	fw, s := open(t)
	iface := fw.Alloc(16)

	h, err := s.Directory.InstallProtocol(0, uefi.EFI_RNG_PROTOCOL_GUID, iface)

	if err != nil {
		t.Fatal(err)
	}

	addr, err := s.Directory.LocateProtocol(uefi.EFI_RNG_PROTOCOL_GUID)

	if err != nil || addr != iface {
		t.Fatalf("unexpected result %#x, %v", addr, err)
	}

	if err = s.Directory.UninstallProtocol(h, uefi.EFI_RNG_PROTOCOL_GUID, iface); err != nil {
		t.Fatal(err)
	}

	if _, err = s.Directory.LocateProtocol(uefi.EFI_RNG_PROTOCOL_GUID); !errors.Is(err, uefi.ErrNotFound) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestGraphicsOutput(t *testing.T) {
	var calls []blt

	fw, s := open(t)
	installGraphics(fw, &calls)

	gop, err := s.Directory.GraphicsOutput()

	if err != nil {
		t.Fatal(err)
	}

	defer gop.Close()

	info, err := gop.GetInfo()

	if err != nil {
		t.Fatal(err)
	}

	if info.HorizontalResolution != 1024 || info.VerticalResolution != 768 {
		t.Fatalf("unexpected resolution %dx%d", info.HorizontalResolution, info.VerticalResolution)
	}

	buf := make([]byte, 4)

	if err = gop.Blt(buf, uefi.EfiBltVideoFill, 0, 0, 0, 0, 1024, 768, 0); err != nil {
		t.Fatal(err)
	}

	if len(calls) != 1 || calls[0] != (blt{uint64(uefi.EfiBltVideoFill), 1024, 768}) {
		t.Fatalf("unexpected calls %v", calls)
	}

	if err = gop.Blt(buf, uefi.EfiGraphicsOutputBltOperationMax, 0, 0, 0, 0, 1, 1, 0); err == nil {
		t.Fatal("invalid operation should fail")
	}
}
