// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package x64

import (
	_ "unsafe"

	"github.com/usbarmory/go-uefi/uefi"
)

// Console represents the early UEFI services console, used for standard
// output before the EFI System Table is validated and after Boot Services
// are exited.
var Console = uefi.NewConsole(
	Firmware.TextInput(conIn),
	Firmware.TextOutput(conOut),
)

//go:linkname printk runtime.printk
func printk(c byte) {
	if Console == nil || conOut == 0 {
		return
	}

	Console.Output([]uint16{uint16(c), 0})

	if c == 0x0a && Console.ForceLine { // LF
		Console.Output([]uint16{0x0d, 0}) // CR
	}
}
