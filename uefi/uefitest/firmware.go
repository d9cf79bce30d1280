// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package uefitest implements an emulated UEFI firmware, suitable to exercise
// the uefi package on any host.
//
// The emulated firmware holds a flat physical address space with an EFI
// System Table and its Boot and Runtime Services tables, a memory map managed
// by a page and pool allocator, a handle database, timer events on a virtual
// clock, a variable store, a real time clock and a text console.
//
// Unlike real firmware WaitForEvent() never blocks, it returns EFI_NOT_READY
// when none of the waited events can ever be signaled.
package uefitest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/usbarmory/go-uefi/uefi"
)

// Emulated physical address space layout
const (
	firmwareBase     = 0x00001000
	firmwareEnd      = 0x00100000
	conventionalBase = 0x00100000
	conventionalEnd  = 0x00500000
	runtimeBase      = 0x00500000
	runtimeEnd       = 0x00510000
	acpiBase         = 0x00510000
	acpiEnd          = 0x00520000

	memorySize = acpiEnd
)

// Revision is the emulated firmware table revision (2.70).
const Revision = 2<<16 | 70

// Vendor is the emulated firmware vendor string.
const Vendor = "go-uefi emulator"

// Function represents an emulated firmware function, invoked through
// [Firmware.Call].
type Function func(args ...uint64) uefi.Status

// Reset represents an EFI_RUNTIME_SERVICES.ResetSystem() invocation.
type Reset struct {
	Type   uefi.ResetType
	Status uefi.Status
}

// Firmware represents an emulated UEFI firmware instance.
type Firmware struct {
	sync.Mutex

	// SystemTable is the EFI System Table address
	SystemTable uint64
	// ImageHandle is the running image handle
	ImageHandle uefi.Handle

	// StartImage, when set, emulates the entry point of images started
	// with EFI_BOOT_SERVICES.StartImage().
	StartImage func(image uefi.Handle) uefi.Status

	// StaleKeys is the number of upcoming ExitBootServices() calls which
	// observe a memory map change and fail.
	StaleKeys int

	mem []byte

	// firmware owned memory allocation
	fwNext uint64
	rtNext uint64

	// memory map
	regions []*region
	spans   map[uint64]uint64
	pools   map[uint64]uint64
	mapKey  uint64

	// handle database
	handles []*handle

	// events
	events    map[uefi.Event]*event
	clock     uint64
	tpl       uefi.TPL
	exited    bool
	lateCalls int
	watchdog  uint64

	// images
	images      map[uefi.Handle]*image
	exitCode    *uefi.Status
	loadedImage uint64

	// file systems
	volumes map[uefi.Handle]*fileSystem

	// runtime services
	rtc       uefi.Time
	variables []*variable
	monotonic uint32
	resets    []Reset

	// console
	conIn  *textInput
	conOut *textOutput

	functions map[uint64]Function
	tables    []uefi.ConfigurationTable

	boot    *bootServices
	runtime *runtimeServices

	bootTable    uint64
	runtimeTable uint64
	conInAddr    uint64
	conOutAddr   uint64
}

// New returns an emulated firmware instance with a valid EFI System Table.
func New() (f *Firmware) {
	f = &Firmware{
		mem:       make([]byte, memorySize),
		fwNext:    firmwareBase,
		rtNext:    runtimeBase,
		spans:     make(map[uint64]uint64),
		pools:     make(map[uint64]uint64),
		mapKey:    1,
		events:    make(map[uefi.Event]*event),
		tpl:       uefi.TPL_APPLICATION,
		images:    make(map[uefi.Handle]*image),
		volumes:   make(map[uefi.Handle]*fileSystem),
		functions: make(map[uint64]Function),
		rtc:       *uefi.NewTime(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)),
	}

	f.rtc.TimeZone = uefi.UnspecifiedTimezone

	f.boot = &bootServices{f}
	f.runtime = &runtimeServices{f}
	f.conIn = &textInput{f: f}
	f.conOut = &textOutput{f: f}

	f.regions = []*region{
		{uefi.EfiReservedMemoryType, 0, 1, memoryWB},
		{uefi.EfiBootServicesData, firmwareBase, (firmwareEnd - firmwareBase) / uefi.PageSize, memoryWB},
		{uefi.EfiConventionalMemory, conventionalBase, (conventionalEnd - conventionalBase) / uefi.PageSize, memoryWB},
		{uefi.EfiRuntimeServicesData, runtimeBase, (runtimeEnd - runtimeBase) / uefi.PageSize, memoryWB | memoryRuntime},
		{uefi.EfiACPIReclaimMemory, acpiBase, (acpiEnd - acpiBase) / uefi.PageSize, memoryWB},
	}

	f.build()

	return
}

// Open validates the emulated EFI System Table and returns the corresponding
// UEFI services instance.
func (f *Firmware) Open() (*uefi.Services, error) {
	return uefi.Open(f, f.ImageHandle, f.SystemTable)
}

func (f *Firmware) alloc(size int) (addr uint64) {
	addr = f.fwNext
	f.fwNext += uint64(size+7) &^ 7

	if f.fwNext > firmwareEnd {
		panic("emulated firmware memory exhausted")
	}

	return
}

func (f *Firmware) allocRuntime(size int) (addr uint64) {
	addr = f.rtNext
	f.rtNext += uint64(size+7) &^ 7

	if f.rtNext > runtimeEnd {
		panic("emulated runtime memory exhausted")
	}

	return
}

func (f *Firmware) write(addr uint64, data any) {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, data); err != nil {
		panic(err)
	}

	copy(f.mem[addr:], buf.Bytes())
}

func (f *Firmware) writeString(s string) (addr uint64) {
	u := append(utf16.Encode([]rune(s)), 0x00)
	addr = f.alloc(len(u) * 2)

	for i, c := range u {
		binary.LittleEndian.PutUint16(f.mem[addr+uint64(i*2):], c)
	}

	return
}

// Alloc reserves size bytes of firmware owned memory.
func (f *Firmware) Alloc(size int) uint64 {
	f.Lock()
	defer f.Unlock()

	return f.alloc(size)
}

// Write stores a fixed-size data structure in firmware owned memory and
// returns its address.
func (f *Firmware) Write(data any) (addr uint64) {
	f.Lock()
	defer f.Unlock()

	addr = f.alloc(binary.Size(data))
	f.write(addr, data)

	return
}

// Seal updates the CRC32 of the EFI table at addr.
func (f *Firmware) Seal(addr uint64) {
	f.Lock()
	defer f.Unlock()

	f.seal(addr)
}

func (f *Firmware) seal(addr uint64) {
	size := binary.LittleEndian.Uint32(f.mem[addr+12:])
	hdr := f.mem[addr : addr+uint64(size)]

	binary.LittleEndian.PutUint32(hdr[16:], 0)
	binary.LittleEndian.PutUint32(hdr[16:], crc32.ChecksumIEEE(hdr))
}

func (f *Firmware) table(signature uint64, size int, runtime bool) (addr uint64) {
	if runtime {
		addr = f.allocRuntime(size)
	} else {
		addr = f.alloc(size)
	}

	f.write(addr, &uefi.TableHeader{
		Signature:  signature,
		Revision:   Revision,
		HeaderSize: uint32(size),
	})

	f.seal(addr)

	return
}

func (f *Firmware) build() {
	f.bootTable = f.table(uefi.BootServicesSignature, uefi.BootServicesSize, false)
	f.runtimeTable = f.table(uefi.RuntimeServicesSignature, uefi.RuntimeServicesSize, true)

	f.conInAddr = f.alloc(0x18)
	f.conOutAddr = f.alloc(0x50)

	conIn := f.install(0, uefi.EFI_SIMPLE_TEXT_INPUT_PROTOCOL_GUID, f.conInAddr)
	conOut := f.install(0, uefi.EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL_GUID, f.conOutAddr)

	f.SystemTable = f.alloc(uefi.SystemTableSize)

	// the running image
	options := "console=ttyS0"
	image := &uefi.LoadedImage{
		Revision:        uefi.EFI_LOADED_IMAGE_PROTOCOL_REVISION,
		SystemTable:     f.SystemTable,
		LoadOptionsSize: uint32((len(options) + 1) * 2),
		LoadOptions:     f.writeString(options),
		ImageCodeType:   uefi.EfiLoaderCode,
		ImageDataType:   uefi.EfiLoaderData,
	}

	f.loadedImage = f.alloc(binary.Size(image))
	f.write(f.loadedImage, image)
	f.ImageHandle = f.install(0, uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID, f.loadedImage)

	st := &uefi.SystemTable{
		Header: uefi.TableHeader{
			Signature:  uefi.SystemTableSignature,
			Revision:   Revision,
			HeaderSize: uefi.SystemTableSize,
		},
		FirmwareVendor:   f.writeString(Vendor),
		FirmwareRevision: 0x10000,
		ConsoleInHandle:  uint64(conIn),
		ConIn:            f.conInAddr,
		ConsoleOutHandle: uint64(conOut),
		ConOut:           f.conOutAddr,
		RuntimeServices:  f.runtimeTable,
		BootServices:     f.bootTable,
	}

	f.write(f.SystemTable, st)
	f.seal(f.SystemTable)
}

// AddConfigurationTable adds an entry to the EFI Configuration Table.
func (f *Firmware) AddConfigurationTable(guid uefi.GUID, vendorTable uint64) {
	f.Lock()
	defer f.Unlock()

	f.tables = append(f.tables, uefi.ConfigurationTable{
		GUID:        guid,
		VendorTable: vendorTable,
	})

	addr := f.alloc(len(f.tables) * binary.Size(&uefi.ConfigurationTable{}))
	f.write(addr, f.tables)

	st := &uefi.SystemTable{}
	binary.Decode(f.mem[f.SystemTable:], binary.LittleEndian, st)

	st.NumberOfTableEntries = uint64(len(f.tables))
	st.ConfigurationTable = addr

	f.write(f.SystemTable, st)
	f.seal(f.SystemTable)
}

// Bytes returns a view over size bytes of emulated memory at addr.
func (f *Firmware) Bytes(addr uint64, size int) ([]byte, error) {
	if addr == 0 || size < 0 || addr+uint64(size) > memorySize {
		return nil, fmt.Errorf("invalid memory access %#x-%#x", addr, addr+uint64(size))
	}

	return f.mem[addr : addr+uint64(size) : addr+uint64(size)], nil
}

// Func registers an emulated function and returns its function pointer.
func (f *Firmware) Func(fn Function) (ptr uint64) {
	f.Lock()
	defer f.Unlock()

	ptr = f.alloc(8)
	f.functions[ptr] = fn

	return
}

// Call invokes the emulated function whose pointer is stored at addr.
func (f *Firmware) Call(addr uint64, args ...uint64) uefi.Status {
	buf, err := f.Bytes(addr, 8)

	if err != nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	f.Lock()
	fn, ok := f.functions[binary.LittleEndian.Uint64(buf)]
	f.Unlock()

	if !ok {
		return uefi.EFI_UNSUPPORTED
	}

	return fn(args...)
}

// BootTable returns the emulated EFI Boot Services.
func (f *Firmware) BootTable(addr uint64) uefi.BootTable {
	return f.boot
}

// RuntimeTable returns the emulated EFI Runtime Services.
func (f *Firmware) RuntimeTable(addr uint64) uefi.RuntimeTable {
	return f.runtime
}

// TextOutput returns the emulated console output.
func (f *Firmware) TextOutput(addr uint64) uefi.TextOutput {
	return f.conOut
}

// TextInput returns the emulated console input.
func (f *Firmware) TextInput(addr uint64) uefi.TextInput {
	return f.conIn
}

// Exited returns whether Boot Services have been exited.
func (f *Firmware) Exited() bool {
	f.Lock()
	defer f.Unlock()

	return f.exited
}

// LateCalls returns the number of Boot Services calls received after exiting
// Boot Services.
func (f *Firmware) LateCalls() int {
	f.Lock()
	defer f.Unlock()

	return f.lateCalls
}

// Watchdog returns the last watchdog timeout set, in seconds.
func (f *Firmware) Watchdog() uint64 {
	f.Lock()
	defer f.Unlock()

	return f.watchdog
}

// Elapsed returns the virtual time elapsed through timers and stalls.
func (f *Firmware) Elapsed() time.Duration {
	f.Lock()
	defer f.Unlock()

	return time.Duration(f.clock) * 100
}

// TPL returns the current task priority level.
func (f *Firmware) TPL() uefi.TPL {
	f.Lock()
	defer f.Unlock()

	return f.tpl
}

// Resets returns all EFI_RUNTIME_SERVICES.ResetSystem() invocations.
func (f *Firmware) Resets() []Reset {
	f.Lock()
	defer f.Unlock()

	return append([]Reset{}, f.resets...)
}

var errExited = errors.New("boot services exited")

// bootCall must be invoked, with the lock held, by all Boot Services.
func (f *Firmware) bootCall() error {
	if f.exited {
		f.lateCalls++
		return errExited
	}

	return nil
}
