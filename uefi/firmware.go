// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

// Handle represents an EFI_HANDLE.
type Handle uint64

// Firmware represents the raw UEFI firmware interface, every service in this
// package is built upon it.
//
// The x64 package implements it over the actual firmware function tables,
// while the uefitest package emulates it for testing.
type Firmware interface {
	// Bytes returns a view over size bytes of firmware memory at addr.
	Bytes(addr uint64, size int) ([]byte, error)

	// Call invokes, with the EFI calling convention, the function pointer
	// stored at addr.
	Call(addr uint64, args ...uint64) Status

	// BootTable returns the EFI Boot Services table at addr.
	BootTable(addr uint64) BootTable
	// RuntimeTable returns the EFI Runtime Services table at addr.
	RuntimeTable(addr uint64) RuntimeTable
	// TextOutput returns the EFI Simple Text Output Protocol at addr.
	TextOutput(addr uint64) TextOutput
	// TextInput returns the EFI Simple Text Input Protocol at addr.
	TextInput(addr uint64) TextInput
}

// BootTable represents the raw EFI_BOOT_SERVICES function table.
type BootTable interface {
	RaiseTPL(tpl TPL) TPL
	RestoreTPL(tpl TPL)

	AllocatePages(t AllocateType, m MemoryType, pages uint64, addr *uint64) Status
	FreePages(addr uint64, pages uint64) Status
	GetMemoryMap(size *uint64, buf []byte, key *uint64, descSize *uint64, descVersion *uint32) Status
	AllocatePool(m MemoryType, size uint64, addr *uint64) Status
	FreePool(addr uint64) Status

	CreateEvent(t EventType, tpl TPL, event *Event) Status
	SetTimer(event Event, t TimerDelay, trigger uint64) Status
	WaitForEvent(events []Event, index *uint64) Status
	SignalEvent(event Event) Status
	CloseEvent(event Event) Status
	CheckEvent(event Event) Status

	InstallProtocolInterface(handle *Handle, guid GUID, iface uint64) Status
	UninstallProtocolInterface(handle Handle, guid GUID, iface uint64) Status
	LocateHandle(t SearchType, guid *GUID, size *uint64, buf []Handle) Status

	LoadImage(bootPolicy bool, parent Handle, devicePath uint64, source []byte, image *Handle) Status
	StartImage(image Handle, exitDataSize *uint64, exitData *uint64) Status
	Exit(image Handle, status Status, exitDataSize uint64, exitData uint64) Status
	UnloadImage(image Handle) Status
	ExitBootServices(image Handle, key uint64) Status

	Stall(us uint64) Status
	SetWatchdogTimer(timeout uint64, code uint64, dataSize uint64, data uint64) Status

	OpenProtocol(handle Handle, guid GUID, iface *uint64, agent Handle, controller Handle, attr OpenAttribute) Status
	CloseProtocol(handle Handle, guid GUID, agent Handle, controller Handle) Status
	ProtocolsPerHandle(handle Handle, buf *uint64, count *uint64) Status
	LocateProtocol(guid GUID, registration uint64, iface *uint64) Status
}

// RuntimeTable represents the raw EFI_RUNTIME_SERVICES function table.
type RuntimeTable interface {
	GetTime(t *Time, c *TimeCapabilities) Status
	SetTime(t *Time) Status

	GetVariable(name []uint16, vendor GUID, attr *uint32, size *uint64, data []byte) Status
	GetNextVariableName(size *uint64, name []uint16, vendor *GUID) Status
	SetVariable(name []uint16, vendor GUID, attr uint32, data []byte) Status
	QueryVariableInfo(attr uint32, maxStorage *uint64, remaining *uint64, maxSize *uint64) Status

	GetNextHighMonotonicCount(count *uint32) Status
	ResetSystem(t ResetType, status Status, data []byte) Status
}

// TextOutput represents the raw EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.
type TextOutput interface {
	Reset(extended bool) Status
	// OutputString and TestString take a NUL terminated UCS-2 string.
	OutputString(s []uint16) Status
	TestString(s []uint16) Status
	QueryMode(mode uint64, cols *uint64, rows *uint64) Status
	SetMode(mode uint64) Status
	SetAttribute(attr uint64) Status
	ClearScreen() Status
	SetCursorPosition(col uint64, row uint64) Status
	EnableCursor(visible bool) Status
}

// TextInput represents the raw EFI_SIMPLE_TEXT_INPUT_PROTOCOL.
type TextInput interface {
	Reset(extended bool) Status
	ReadKeyStroke(k *InputKey) Status
}
