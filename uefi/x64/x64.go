// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

// Package x64 provides hardware initialization, automatically on import, for
// the Unified Extensible Firmware Interface (UEFI) application environment
// under a single x86_64 core.
//
// The running firmware is exposed as a [uefi.Firmware] instance, the EFI
// System Table passed to the image entry point is validated on import.
//
// This package is only meant to be used with `GOOS=tamago` as
// supported by the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/tamago.
package x64

import (
	"log"
	"runtime/goos"
	_ "unsafe"

	"github.com/usbarmory/tamago/amd64"
	"github.com/usbarmory/tamago/soc/intel/rtc"
	"github.com/usbarmory/tamago/soc/intel/uart"

	"github.com/usbarmory/go-uefi/uefi"
)

// Peripheral registers
const (
	// Keyboard controller port
	KBD_PORT = 0x64

	// Communication port
	COM1 = 0x3f8
)

// set in x64.s
var (
	imageHandle uint64
	systemTable uint64
	conIn       uint64
	conOut      uint64
)

// Peripheral instances
var (
	// AMD64 core
	AMD64 = &amd64.CPU{
		// required before Init()
		TimerMultiplier: 1,
	}

	// Real-Time Clock
	RTC = &rtc.RTC{}

	// Serial port
	UART0 = &uart.UART{
		Index: 1,
		Base:  COM1,
		DTR:   true,
		RTS:   true,
	}

	// Firmware interface
	Firmware uefi.Firmware = &firmware{}
)

// validated on initialization
var (
	services    *uefi.Services
	servicesErr error
)

//go:linkname nanotime runtime/goos.Nanotime
func nanotime() int64 {
	return AMD64.GetTime()
}

// Init takes care of the lower level initialization triggered early in runtime
// setup.
//
//go:linkname Init runtime/goos.Hwinit1
func Init() {
	// initialize CPU
	AMD64.Init()

	// disable CPU idle time management
	goos.Idle = nil

	// initialize serial console
	UART0.Init()
}

func init() {
	if t, err := RTC.Now(); err == nil {
		AMD64.SetTime(t.UnixNano())
	}

	Console.ClearScreen()

	print("initializing EFI services\n")

	if services, servicesErr = uefi.Open(Firmware, uefi.Handle(imageHandle), systemTable); servicesErr != nil {
		log.Printf("could not initialize EFI services, %v", servicesErr)
		return
	}

	// allocate runtime heap in UEFI memory
	allocateHeap(services)
}

// Open returns the UEFI services instance for the EFI System Table passed to
// the image entry point, or the error of its validation.
func Open() (*uefi.Services, error) {
	return services, servicesErr
}
