// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/uefitest"
)

var testGUID = uefi.MustParseGUID("c3a4f2f0-8e0a-4c4b-9b5e-5a3bd0f1e2a7")

func TestVariables(t *testing.T) {
	_, s := open(t)
	rt := s.Runtime

	attr := uefi.VariableAttributes{
		NonVolatile:          true,
		BootServiceAccess:    true,
		RuntimeServiceAccess: true,
	}

	if err := rt.SetVariable("Test", testGUID, attr, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	if err := rt.SetVariable("Other", uefi.EFI_GLOBAL_VARIABLE_GUID, attr, bytes.Repeat([]byte{1}, 2048)); err != nil {
		t.Fatal(err)
	}

	a, size, data, err := rt.GetVariable("Test", testGUID, true)

	if err != nil {
		t.Fatal(err)
	}

	if a != attr || size != 5 || string(data) != "hello" {
		t.Fatalf("unexpected variable %+v %d %q", a, size, data)
	}

	if _, size, data, err = rt.GetVariable("Other", uefi.EFI_GLOBAL_VARIABLE_GUID, false); err != nil || size != 2048 || data != nil {
		t.Fatalf("unexpected variable %d %v", size, err)
	}

	vars, err := rt.Variables()

	if err != nil {
		t.Fatal(err)
	}

	if len(vars) != 2 || vars[0] != (uefi.VariableName{Name: "Test", GUID: testGUID}) || vars[1].Name != "Other" {
		t.Fatalf("unexpected variables %v", vars)
	}

	if err = rt.DeleteVariable("Test", testGUID); err != nil {
		t.Fatal(err)
	}

	if _, _, _, err = rt.GetVariable("Test", testGUID, true); !errors.Is(err, uefi.ErrNotFound) {
		t.Fatalf("unexpected error %v", err)
	}

	if err = rt.DeleteVariable("Test", testGUID); !errors.Is(err, uefi.ErrNotFound) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestVariableAppend(t *testing.T) {
	_, s := open(t)
	rt := s.Runtime

	attr := uefi.VariableAttributes{BootServiceAccess: true}

	if err := rt.SetVariable("Log", testGUID, attr, []byte("a")); err != nil {
		t.Fatal(err)
	}

	attr.AppendWrite = true

	if err := rt.SetVariable("Log", testGUID, attr, []byte("b")); err != nil {
		t.Fatal(err)
	}

	_, _, data, err := rt.GetVariable("Log", testGUID, true)

	if err != nil {
		t.Fatal(err)
	}

	if string(data) != "ab" {
		t.Fatalf("unexpected data %q", data)
	}
}

func TestVariableLongName(t *testing.T) {
	_, s := open(t)

	name := string(bytes.Repeat([]byte("n"), 700))
	attr := uefi.VariableAttributes{BootServiceAccess: true}

	if err := s.Runtime.SetVariable(name, testGUID, attr, []byte{1}); err != nil {
		t.Fatal(err)
	}

	vars, err := s.Runtime.Variables()

	if err != nil {
		t.Fatal(err)
	}

	if len(vars) != 1 || vars[0].Name != name {
		t.Fatal("unexpected variables")
	}
}

func TestQueryVariableInfo(t *testing.T) {
	_, s := open(t)

	attr := uefi.VariableAttributes{BootServiceAccess: true}

	info, err := s.Runtime.QueryVariableInfo(attr)

	if err != nil {
		t.Fatal(err)
	}

	if info.MaximumVariableStorageSize != uefitest.MaxVariableStorage || info.RemainingVariableStorageSize != uefitest.MaxVariableStorage {
		t.Fatalf("unexpected info %+v", info)
	}

	if err = s.Runtime.SetVariable("A", testGUID, attr, make([]byte, uefitest.MaxVariableSize+1)); !errors.Is(err, uefi.ErrAllocationFailed) {
		t.Fatalf("unexpected error %v", err)
	}

	if _, err = s.Runtime.QueryVariableInfo(uefi.VariableAttributes{}); err == nil {
		t.Fatal("empty attributes should fail")
	}
}

func TestVariableAttributes(t *testing.T) {
	attr := uefi.ParseVariableAttributes(0x47)

	if !attr.NonVolatile || !attr.BootServiceAccess || !attr.RuntimeServiceAccess || !attr.AppendWrite || attr.HardwareErrorRecord {
		t.Fatalf("unexpected attributes %+v", attr)
	}

	if attr.Uint32() != 0x47 {
		t.Fatalf("unexpected attributes %#x", attr.Uint32())
	}
}

func TestTime(t *testing.T) {
	_, s := open(t)

	now, c, err := s.Runtime.GetTime()

	if err != nil {
		t.Fatal(err)
	}

	if !now.Time().Equal(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", now.Time())
	}

	if c.Resolution != 1 {
		t.Fatalf("unexpected capabilities %+v", c)
	}

	set := time.Date(2026, 10, 15, 8, 30, 0, 0, time.FixedZone("", 2*3600))

	if err = s.Runtime.SetTime(set); err != nil {
		t.Fatal(err)
	}

	if now, _, err = s.Runtime.GetTime(); err != nil {
		t.Fatal(err)
	}

	if !now.Time().Equal(set) || now.TimeZone != 120 {
		t.Fatalf("unexpected time %v", now.Time())
	}
}

func TestMonotonicCount(t *testing.T) {
	_, s := open(t)

	a, err := s.Runtime.GetNextHighMonotonicCount()

	if err != nil {
		t.Fatal(err)
	}

	b, err := s.Runtime.GetNextHighMonotonicCount()

	if err != nil {
		t.Fatal(err)
	}

	if b <= a {
		t.Fatalf("count not increasing (%d, %d)", a, b)
	}
}

func TestResetSystem(t *testing.T) {
	fw, s := open(t)

	if err := s.Runtime.ResetSystem(uefi.EfiResetShutdown, uefi.EFI_SUCCESS); err != nil {
		t.Fatal(err)
	}

	resets := fw.Resets()

	if len(resets) != 1 || resets[0].Type != uefi.EfiResetShutdown {
		t.Fatalf("unexpected resets %v", resets)
	}

	if err := s.Runtime.ResetSystem(uefi.EfiResetPlatformSpecific+1, uefi.EFI_SUCCESS); err == nil {
		t.Fatal("invalid reset type should fail")
	}
}
