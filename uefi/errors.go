// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"fmt"
)

// Error classes, every error returned by this package matches one of them
// with [errors.Is].
var (
	ErrInvalidTable        = errors.New("invalid table")
	ErrNotFound            = errors.New("not found")
	ErrMultipleHandles     = errors.New("multiple handles")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrAccessDenied        = errors.New("access denied")
	ErrMemoryMapChanged    = errors.New("memory map changed")
	ErrAllocationFailed    = errors.New("allocation failed")
	ErrServicesUnavailable = errors.New("boot services unavailable")
	ErrFirmware            = errors.New("firmware error")

	// ErrClosed is returned when using an opened protocol after its
	// release.
	ErrClosed = errors.New("protocol closed")
)

// Error represents a failed firmware call.
type Error struct {
	// Op is the firmware service name
	Op string
	// Status is the raw firmware status
	Status Status
	// Err is the error class
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s, %v (%s)", e.Op, e.Err, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf returns the raw firmware status carried by err, if any.
func StatusOf(err error) (s Status, ok bool) {
	var e *Error

	if errors.As(err, &e) {
		return e.Status, true
	}

	return
}

// statusError returns nil on success or warning, an [*Error] of the argument
// class otherwise. A nil class selects the default status mapping.
func statusError(op string, status Status, class error) error {
	if !status.IsError() {
		return nil
	}

	if class == nil {
		switch status {
		case EFI_NOT_FOUND:
			class = ErrNotFound
		case EFI_ACCESS_DENIED:
			class = ErrAccessDenied
		case EFI_OUT_OF_RESOURCES:
			class = ErrAllocationFailed
		case EFI_UNSUPPORTED:
			class = ErrUnsupportedProtocol
		default:
			class = ErrFirmware
		}
	}

	return &Error{
		Op:     op,
		Status: status,
		Err:    class,
	}
}

func parseStatus(op string, status Status) error {
	return statusError(op, status, nil)
}
