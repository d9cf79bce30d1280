// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"errors"
	"testing"
	"time"

	"github.com/usbarmory/go-uefi/uefi"
)

func TestHandoff(t *testing.T) {
	var exited int
	var stallErr error

	fw, s := open(t)

	_, err := s.Boot.CreateEvent(uefi.EVT_SIGNAL_EXIT_BOOT_SERVICES, uefi.TPL_NOTIFY, func(uefi.Event) {
		exited++
		// boot services remain usable during exit notifications
		stallErr = s.Boot.Stall(time.Microsecond)
	})

	if err != nil {
		t.Fatal(err)
	}

	p, err := s.Directory.Open(fw.ImageHandle, uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID, uefi.OpenGetProtocol)

	if err != nil {
		t.Fatal(err)
	}

	fw.StaleKeys = 2

	rt, m, err := s.Handoff()

	if err != nil {
		t.Fatal(err)
	}

	if !fw.Exited() || s.Available() {
		t.Fatal("boot services should be exited")
	}

	if exited != 1 || stallErr != nil {
		t.Fatalf("unexpected exit notifications %d, %v", exited, stallErr)
	}

	if !p.Closed() || fw.OpenCount(fw.ImageHandle, uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID) != 0 {
		t.Fatal("outstanding protocols should be released")
	}

	if uint64(m.MapKey) != fw.MapKey() {
		t.Fatal("stale memory map returned")
	}

	if rt.Address() != fw.SystemTable {
		t.Fatal("unexpected system table")
	}
}

func TestExitBootServicesStaleKey(t *testing.T) {
	fw, s := open(t)

	p, err := s.Directory.Open(fw.ImageHandle, uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID, uefi.OpenGetProtocol)

	if err != nil {
		t.Fatal(err)
	}

	m, err := s.Boot.GetMemoryMap()

	if err != nil {
		t.Fatal(err)
	}

	fw.Touch()

	_, err = s.ExitBootServices(m.MapKey)

	if !errors.Is(err, uefi.ErrMemoryMapChanged) {
		t.Fatalf("unexpected error %v", err)
	}

	if !s.Available() || fw.Exited() {
		t.Fatal("boot services should remain available")
	}

	// opened protocols survive a failed exit
	if p.Closed() || fw.OpenCount(fw.ImageHandle, uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID) != 1 {
		t.Fatal("opened protocol should not be released")
	}

	image := &uefi.LoadedImage{}

	if err = p.Decode(image); err != nil {
		t.Fatal(err)
	}

	if m, err = s.Boot.GetMemoryMap(); err != nil {
		t.Fatal(err)
	}

	if _, err = s.ExitBootServices(m.MapKey); err != nil {
		t.Fatal(err)
	}

	if !p.Closed() {
		t.Fatal("opened protocol should be released")
	}

	if err = p.Decode(image); !errors.Is(err, uefi.ErrClosed) {
		t.Fatalf("unexpected error %v", err)
	}

	// no release call reaches firmware after exit
	p.Close()

	if fw.LateCalls() != 0 {
		t.Fatalf("%d calls reached firmware after exit", fw.LateCalls())
	}
}

func TestHandoffExhausted(t *testing.T) {
	fw, s := open(t)
	fw.StaleKeys = 100

	if _, _, err := s.Handoff(); !errors.Is(err, uefi.ErrMemoryMapChanged) {
		t.Fatalf("unexpected error %v", err)
	}

	if !s.Available() {
		t.Fatal("boot services should remain available")
	}
}

func TestServicesRevoked(t *testing.T) {
	fw, s := open(t)

	buf, err := s.Allocator.Alloc(64, 8)

	if err != nil {
		t.Fatal(err)
	}

	rt, _, err := s.Handoff()

	if err != nil {
		t.Fatal(err)
	}

	unavailable := func(name string, err error) {
		t.Helper()

		if !errors.Is(err, uefi.ErrServicesUnavailable) {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}

	_, err = s.Boot.GetMemoryMap()
	unavailable("GetMemoryMap", err)

	_, err = s.Boot.AllocatePool(uefi.EfiLoaderData, 16)
	unavailable("AllocatePool", err)

	_, err = s.Allocator.Alloc(64, 8)
	unavailable("Alloc", err)

	unavailable("Free", s.Allocator.Free(buf))

	_, err = s.Directory.LocateHandles(uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID)
	unavailable("LocateHandles", err)

	_, err = s.Directory.Open(fw.ImageHandle, uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID, uefi.OpenGetProtocol)
	unavailable("Open", err)

	_, err = s.Boot.CreateEvent(uefi.EVT_TIMER, uefi.TPL_CALLBACK, nil)
	unavailable("CreateEvent", err)

	unavailable("Stall", s.Boot.Stall(1))
	unavailable("SetWatchdogTimer", s.Boot.SetWatchdogTimer(0))

	_, err = s.Console.Write([]byte("test"))
	unavailable("Write", err)

	_, err = s.ExitBootServices(0)
	unavailable("ExitBootServices", err)

	if fw.LateCalls() != 0 {
		t.Fatalf("%d calls reached firmware after exit", fw.LateCalls())
	}

	// runtime services remain available
	if _, _, err = rt.Runtime.GetTime(); err != nil {
		t.Fatal(err)
	}
}

func TestRuntimeVariablesAfterExit(t *testing.T) {
	_, s := open(t)

	boot := uefi.VariableAttributes{BootServiceAccess: true}
	runtime := uefi.VariableAttributes{BootServiceAccess: true, RuntimeServiceAccess: true}

	if err := s.Runtime.SetVariable("Boot", uefi.EFI_GLOBAL_VARIABLE_GUID, boot, []byte{1}); err != nil {
		t.Fatal(err)
	}

	if err := s.Runtime.SetVariable("Runtime", uefi.EFI_GLOBAL_VARIABLE_GUID, runtime, []byte{2}); err != nil {
		t.Fatal(err)
	}

	rt, _, err := s.Handoff()

	if err != nil {
		t.Fatal(err)
	}

	vars, err := rt.Runtime.Variables()

	if err != nil {
		t.Fatal(err)
	}

	if len(vars) != 1 || vars[0].Name != "Runtime" {
		t.Fatalf("unexpected variables %v", vars)
	}

	if _, _, _, err = rt.Runtime.GetVariable("Boot", uefi.EFI_GLOBAL_VARIABLE_GUID, true); !errors.Is(err, uefi.ErrNotFound) {
		t.Fatalf("unexpected error %v", err)
	}
}
