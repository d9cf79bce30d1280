// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package uefi implements a driver for the Unified Extensible Firmware
// Interface (UEFI) following the specifications at:
//
//	https://uefi.org/specs/UEFI/2.10/
//
// All firmware access goes through a [Firmware] instance, provided by the x64
// package on `GOOS=tamago` as supported by the TamaGo framework for bare
// metal Go (see https://github.com/usbarmory/tamago), or emulated by the
// uefitest package.
//
// A validated EFI System Table yields a [Services] instance, valid until
// [Services.ExitBootServices] succeeds, after which only the returned
// [Runtime] instance remains usable.
package uefi

import (
	"fmt"
)

const maxVendorSize = 128

// Services represents the UEFI services instance, prior to exiting Boot
// Services.
type Services struct {
	// EFI System Table instance
	SystemTable *SystemTable

	// UEFI services
	Console   *Console
	Boot      *BootServices
	Runtime   *RuntimeServices
	Directory *Directory
	Allocator *Allocator

	fw          Firmware
	state       *bootState
	imageHandle Handle
	systemTable uint64
}

// Open validates the EFI System Table at the argument address, as well as the
// Boot and Runtime Services tables it points to, and returns the
// corresponding UEFI services instance.
//
// Any validation failure returns [ErrInvalidTable] without side effects.
func Open(fw Firmware, imageHandle Handle, systemTable uint64) (s *Services, err error) {
	if fw == nil {
		return nil, fmt.Errorf("%w, missing firmware", ErrInvalidTable)
	}

	if _, err = ValidateTable(fw, systemTable, SystemTableSignature, SystemTableSize); err != nil {
		return
	}

	st := &SystemTable{}

	if err = decode(fw, st, systemTable); err != nil {
		return nil, fmt.Errorf("%w, %v", ErrInvalidTable, err)
	}

	if _, err = ValidateTable(fw, st.BootServices, BootServicesSignature, BootServicesSize); err != nil {
		return
	}

	if _, err = ValidateTable(fw, st.RuntimeServices, RuntimeServicesSignature, RuntimeServicesSize); err != nil {
		return
	}

	state := newBootState(fw.BootTable(st.BootServices), imageHandle)

	s = &Services{
		SystemTable: st,
		fw:          fw,
		state:       state,
		imageHandle: imageHandle,
		systemTable: systemTable,
	}

	s.Boot = &BootServices{
		fw:    fw,
		state: state,
	}

	s.Runtime = &RuntimeServices{
		table: fw.RuntimeTable(st.RuntimeServices),
	}

	s.Directory = &Directory{
		fw:    fw,
		state: state,
		boot:  s.Boot,
	}

	s.Allocator = &Allocator{
		MemoryType: EfiLoaderData,
		boot:       s.Boot,
	}

	s.Console = &Console{
		ForceLine:   true,
		ReplaceTabs: 8,
		state:       state,
	}

	if st.ConIn != 0 {
		s.Console.In = fw.TextInput(st.ConIn)
	}

	if st.ConOut != 0 {
		s.Console.Out = fw.TextOutput(st.ConOut)
	}

	return
}

// ImageHandle returns the UEFI image handle.
func (s *Services) ImageHandle() Handle {
	return s.imageHandle
}

// Address returns the EFI System Table pointer.
func (s *Services) Address() uint64 {
	return s.systemTable
}

// Available returns whether Boot Services have not been exited yet.
func (s *Services) Available() bool {
	return s.state.available()
}

// FirmwareVendor returns the EFI System Table firmware vendor string.
func (s *Services) FirmwareVendor() (string, error) {
	return readString(s.fw, s.SystemTable.FirmwareVendor, maxVendorSize)
}

// ConfigurationTables returns the EFI Configuration Tables.
func (s *Services) ConfigurationTables() ([]*ConfigurationTable, error) {
	return configurationTables(s.fw, s.SystemTable)
}

// LocateConfiguration locates an EFI Configuration Table.
func (s *Services) LocateConfiguration(guid GUID) (*ConfigurationTable, error) {
	return locateConfiguration(s.fw, s.SystemTable, guid)
}

func (s *Services) runtime() *Runtime {
	return &Runtime{
		SystemTable: s.SystemTable,
		Runtime:     s.Runtime,
		fw:          s.fw,
		systemTable: s.systemTable,
	}
}

// Runtime represents the UEFI services instance after exiting Boot Services.
type Runtime struct {
	// EFI System Table instance
	SystemTable *SystemTable

	// UEFI services
	Runtime *RuntimeServices

	fw          Firmware
	systemTable uint64
}

// Address returns the EFI System Table pointer.
func (rt *Runtime) Address() uint64 {
	return rt.systemTable
}

// ConfigurationTables returns the EFI Configuration Tables.
func (rt *Runtime) ConfigurationTables() ([]*ConfigurationTable, error) {
	return configurationTables(rt.fw, rt.SystemTable)
}

// LocateConfiguration locates an EFI Configuration Table.
func (rt *Runtime) LocateConfiguration(guid GUID) (*ConfigurationTable, error) {
	return locateConfiguration(rt.fw, rt.SystemTable, guid)
}
