// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"time"
)

// BootServices represents an EFI Boot Services instance, its methods fail
// with [ErrServicesUnavailable] once Boot Services are exited.
type BootServices struct {
	fw    Firmware
	state *bootState
}

// TPL represents an EFI_TPL task priority level.
type TPL uint64

// EFI_TPL
const (
	TPL_APPLICATION TPL = 4
	TPL_CALLBACK    TPL = 8
	TPL_NOTIFY      TPL = 16
	TPL_HIGH_LEVEL  TPL = 31
)

// RaiseTPL calls EFI_BOOT_SERVICES.RaiseTPL(), the returned function calls
// EFI_BOOT_SERVICES.RestoreTPL() with the previous task priority level.
func (s *BootServices) RaiseTPL(tpl TPL) (restore func(), err error) {
	b, err := s.state.boot("EFI_BOOT_SERVICES.RaiseTPL")

	if err != nil {
		return
	}

	old := b.RaiseTPL(tpl)

	restore = func() {
		if b, err := s.state.boot("EFI_BOOT_SERVICES.RestoreTPL"); err == nil {
			b.RestoreTPL(old)
		}
	}

	return
}

// Stall calls EFI_BOOT_SERVICES.Stall().
func (s *BootServices) Stall(d time.Duration) (err error) {
	const op = "EFI_BOOT_SERVICES.Stall"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	return parseStatus(op, b.Stall(uint64(d/time.Microsecond)))
}
