// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package cmd implements the shell commands of the go-uefi application.
//
// Commands operate on the UEFI services instance of the invoking
// [shell.Interface], once Boot Services are exited only its Runtime
// instance remains available.
package cmd

import (
	"errors"

	"github.com/usbarmory/go-uefi/shell"
	"github.com/usbarmory/go-uefi/uefi"
)

// Banner represents the welcome message
var Banner string

var errUnavailable = errors.New("EFI services unavailable")

func services(iface *shell.Interface) (*uefi.Services, error) {
	if iface == nil || iface.UEFI == nil {
		return nil, errUnavailable
	}

	if !iface.UEFI.Available() {
		return nil, uefi.ErrServicesUnavailable
	}

	return iface.UEFI, nil
}

func runtimeServices(iface *shell.Interface) (*uefi.RuntimeServices, error) {
	switch {
	case iface == nil:
		return nil, errUnavailable
	case iface.Runtime != nil:
		return iface.Runtime.Runtime, nil
	case iface.UEFI != nil:
		return iface.UEFI.Runtime, nil
	default:
		return nil, errUnavailable
	}
}
