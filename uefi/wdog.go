// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

const watchdogCode = 0xba3e5e7a1

// SetWatchdogTimer calls EFI_BOOT_SERVICES.SetWatchdogTimer(), a zero timeout
// disables the watchdog.
func (s *BootServices) SetWatchdogTimer(sec int) (err error) {
	const op = "EFI_BOOT_SERVICES.SetWatchdogTimer"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	return parseStatus(op, b.SetWatchdogTimer(uint64(sec), watchdogCode, 0, 0))
}
