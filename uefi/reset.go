// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

// ResetType represents an EFI_RESET_TYPE.
type ResetType uint32

// EFI_RESET_TYPE
const (
	EfiResetCold ResetType = iota
	EfiResetWarm
	EfiResetShutdown
	EfiResetPlatformSpecific
)

// ResetSystem calls EFI_RUNTIME_SERVICES.ResetSystem(), which returns only on
// failure.
func (s *RuntimeServices) ResetSystem(resetType ResetType, reason Status) (err error) {
	const op = "EFI_RUNTIME_SERVICES.ResetSystem"

	return parseStatus(op, s.table.ResetSystem(resetType, reason, nil))
}
