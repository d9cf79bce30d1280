// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"fmt"
)

// Status represents an EFI_STATUS code.
type Status uint64

const errorBit = 1 << 63

// EFI_STATUS success and error codes
// https://uefi.org/specs/UEFI/2.10/Apx_D_Status_Codes.html
const (
	EFI_SUCCESS Status = 0

	EFI_LOAD_ERROR Status = errorBit | iota
	EFI_INVALID_PARAMETER
	EFI_UNSUPPORTED
	EFI_BAD_BUFFER_SIZE
	EFI_BUFFER_TOO_SMALL
	EFI_NOT_READY
	EFI_DEVICE_ERROR
	EFI_WRITE_PROTECTED
	EFI_OUT_OF_RESOURCES
	EFI_VOLUME_CORRUPTED
	EFI_VOLUME_FULL
	EFI_NO_MEDIA
	EFI_MEDIA_CHANGED
	EFI_NOT_FOUND
	EFI_ACCESS_DENIED
	EFI_NO_RESPONSE
	EFI_NO_MAPPING
	EFI_TIMEOUT
	EFI_NOT_STARTED
	EFI_ALREADY_STARTED
	EFI_ABORTED
	EFI_ICMP_ERROR
	EFI_TFTP_ERROR
	EFI_PROTOCOL_ERROR
	EFI_INCOMPATIBLE_VERSION
	EFI_SECURITY_VIOLATION
	EFI_CRC_ERROR
	EFI_END_OF_MEDIA
	_
	_
	EFI_END_OF_FILE
	EFI_INVALID_LANGUAGE
	EFI_COMPROMISED_DATA
	EFI_IP_ADDRESS_CONFLICT
	EFI_HTTP_ERROR
)

// EFI_STATUS warning codes
const (
	EFI_WARN_UNKNOWN_GLYPH Status = iota + 1
	EFI_WARN_DELETE_FAILURE
	EFI_WARN_WRITE_FAILURE
	EFI_WARN_BUFFER_TOO_SMALL
	EFI_WARN_STALE_DATA
	EFI_WARN_FILE_SYSTEM
	EFI_WARN_RESET_REQUIRED
)

var statusNames = map[Status]string{
	EFI_SUCCESS:              "EFI_SUCCESS",
	EFI_LOAD_ERROR:           "EFI_LOAD_ERROR",
	EFI_INVALID_PARAMETER:    "EFI_INVALID_PARAMETER",
	EFI_UNSUPPORTED:          "EFI_UNSUPPORTED",
	EFI_BAD_BUFFER_SIZE:      "EFI_BAD_BUFFER_SIZE",
	EFI_BUFFER_TOO_SMALL:     "EFI_BUFFER_TOO_SMALL",
	EFI_NOT_READY:            "EFI_NOT_READY",
	EFI_DEVICE_ERROR:         "EFI_DEVICE_ERROR",
	EFI_WRITE_PROTECTED:      "EFI_WRITE_PROTECTED",
	EFI_OUT_OF_RESOURCES:     "EFI_OUT_OF_RESOURCES",
	EFI_VOLUME_CORRUPTED:     "EFI_VOLUME_CORRUPTED",
	EFI_VOLUME_FULL:          "EFI_VOLUME_FULL",
	EFI_NO_MEDIA:             "EFI_NO_MEDIA",
	EFI_MEDIA_CHANGED:        "EFI_MEDIA_CHANGED",
	EFI_NOT_FOUND:            "EFI_NOT_FOUND",
	EFI_ACCESS_DENIED:        "EFI_ACCESS_DENIED",
	EFI_NO_RESPONSE:          "EFI_NO_RESPONSE",
	EFI_NO_MAPPING:           "EFI_NO_MAPPING",
	EFI_TIMEOUT:              "EFI_TIMEOUT",
	EFI_NOT_STARTED:          "EFI_NOT_STARTED",
	EFI_ALREADY_STARTED:      "EFI_ALREADY_STARTED",
	EFI_ABORTED:              "EFI_ABORTED",
	EFI_ICMP_ERROR:           "EFI_ICMP_ERROR",
	EFI_TFTP_ERROR:           "EFI_TFTP_ERROR",
	EFI_PROTOCOL_ERROR:       "EFI_PROTOCOL_ERROR",
	EFI_INCOMPATIBLE_VERSION: "EFI_INCOMPATIBLE_VERSION",
	EFI_SECURITY_VIOLATION:   "EFI_SECURITY_VIOLATION",
	EFI_CRC_ERROR:            "EFI_CRC_ERROR",
	EFI_END_OF_MEDIA:         "EFI_END_OF_MEDIA",
	EFI_END_OF_FILE:          "EFI_END_OF_FILE",
	EFI_INVALID_LANGUAGE:     "EFI_INVALID_LANGUAGE",
	EFI_COMPROMISED_DATA:     "EFI_COMPROMISED_DATA",
	EFI_IP_ADDRESS_CONFLICT:  "EFI_IP_ADDRESS_CONFLICT",
	EFI_HTTP_ERROR:           "EFI_HTTP_ERROR",

	EFI_WARN_UNKNOWN_GLYPH:    "EFI_WARN_UNKNOWN_GLYPH",
	EFI_WARN_DELETE_FAILURE:   "EFI_WARN_DELETE_FAILURE",
	EFI_WARN_WRITE_FAILURE:    "EFI_WARN_WRITE_FAILURE",
	EFI_WARN_BUFFER_TOO_SMALL: "EFI_WARN_BUFFER_TOO_SMALL",
	EFI_WARN_STALE_DATA:       "EFI_WARN_STALE_DATA",
	EFI_WARN_FILE_SYSTEM:      "EFI_WARN_FILE_SYSTEM",
	EFI_WARN_RESET_REQUIRED:   "EFI_WARN_RESET_REQUIRED",
}

// IsError returns whether the status represents an error.
func (s Status) IsError() bool {
	return s&errorBit != 0
}

// IsWarning returns whether the status represents a warning.
func (s Status) IsWarning() bool {
	return s != EFI_SUCCESS && !s.IsError()
}

// String returns the status code name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	if s.IsError() {
		return fmt.Sprintf("EFI_ERROR(%#x)", uint64(s&^errorBit))
	}

	return fmt.Sprintf("EFI_WARN(%#x)", uint64(s))
}
