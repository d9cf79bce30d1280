// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
)

const (
	// initial variable name buffer size in bytes
	variableNameSize = 1024
	// maximum number of calls for variable buffer sizing
	maxVariableAttempts = 4
)

// EFI variable attributes
const (
	EFI_VARIABLE_NON_VOLATILE                          = 0x00000001
	EFI_VARIABLE_BOOTSERVICE_ACCESS                    = 0x00000002
	EFI_VARIABLE_RUNTIME_ACCESS                        = 0x00000004
	EFI_VARIABLE_HARDWARE_ERROR_RECORD                 = 0x00000008
	EFI_VARIABLE_AUTHENTICATED_WRITE_ACCESS            = 0x00000010
	EFI_VARIABLE_TIME_BASED_AUTHENTICATED_WRITE_ACCESS = 0x00000020
	EFI_VARIABLE_APPEND_WRITE                          = 0x00000040
	EFI_VARIABLE_ENHANCED_AUTHENTICATED_ACCESS         = 0x00000080
)

// VariableAttributes represents the attributes of a UEFI variable.
// See: https://uefi.org/specs/UEFI/2.11/08_Services_Runtime_Services.html#getvariable
type VariableAttributes struct {
	NonVolatile              bool
	BootServiceAccess        bool
	RuntimeServiceAccess     bool
	HardwareErrorRecord      bool
	AuthWriteAccess          bool
	TimeBasedAuthWriteAccess bool
	AppendWrite              bool
	EnhancedAuthAccess       bool
}

// ParseVariableAttributes converts an attributes bitmask.
func ParseVariableAttributes(attributes uint32) (attr VariableAttributes) {
	attr.NonVolatile = attributes&EFI_VARIABLE_NON_VOLATILE != 0
	attr.BootServiceAccess = attributes&EFI_VARIABLE_BOOTSERVICE_ACCESS != 0
	attr.RuntimeServiceAccess = attributes&EFI_VARIABLE_RUNTIME_ACCESS != 0
	attr.HardwareErrorRecord = attributes&EFI_VARIABLE_HARDWARE_ERROR_RECORD != 0
	attr.AuthWriteAccess = attributes&EFI_VARIABLE_AUTHENTICATED_WRITE_ACCESS != 0
	attr.TimeBasedAuthWriteAccess = attributes&EFI_VARIABLE_TIME_BASED_AUTHENTICATED_WRITE_ACCESS != 0
	attr.AppendWrite = attributes&EFI_VARIABLE_APPEND_WRITE != 0
	attr.EnhancedAuthAccess = attributes&EFI_VARIABLE_ENHANCED_AUTHENTICATED_ACCESS != 0

	return
}

// Uint32 returns the attributes bitmask.
func (attr VariableAttributes) Uint32() (attributes uint32) {
	flags := []bool{
		attr.NonVolatile,
		attr.BootServiceAccess,
		attr.RuntimeServiceAccess,
		attr.HardwareErrorRecord,
		attr.AuthWriteAccess,
		attr.TimeBasedAuthWriteAccess,
		attr.AppendWrite,
		attr.EnhancedAuthAccess,
	}

	for i, set := range flags {
		if set {
			attributes |= 1 << i
		}
	}

	return
}

// VariableName represents a UEFI variable identifier.
type VariableName struct {
	Name string
	GUID GUID
}

// VariableInfo represents EFI_RUNTIME_SERVICES.QueryVariableInfo() results.
type VariableInfo struct {
	MaximumVariableStorageSize   uint64
	RemainingVariableStorageSize uint64
	MaximumVariableSize          uint64
}

// GetVariable calls EFI_RUNTIME_SERVICES.GetVariable().
// See: https://uefi.org/specs/UEFI/2.11/08_Services_Runtime_Services.html#getvariable
func (s *RuntimeServices) GetVariable(name string, guid GUID, withData bool) (attr VariableAttributes, dataSize uint64, data []byte, err error) {
	const op = "EFI_RUNTIME_SERVICES.GetVariable"

	var attributes uint32

	nameUTF16 := toUTF16(name)

	// The first call retrieves the attributes and size of data
	status := s.table.GetVariable(nameUTF16, guid, &attributes, &dataSize, nil)

	if status != EFI_SUCCESS && status != EFI_BUFFER_TOO_SMALL {
		return VariableAttributes{}, 0, nil, parseStatus(op, status)
	}

	if !withData || dataSize == 0 {
		return ParseVariableAttributes(attributes), dataSize, nil, nil
	}

	// The following calls retrieve the data
	for i := 0; i < maxVariableAttempts; i++ {
		data = make([]byte, dataSize)
		status = s.table.GetVariable(nameUTF16, guid, &attributes, &dataSize, data)

		if status == EFI_BUFFER_TOO_SMALL {
			continue
		}

		if err = parseStatus(op, status); err != nil {
			return VariableAttributes{}, 0, nil, err
		}

		return ParseVariableAttributes(attributes), dataSize, data[:dataSize], nil
	}

	return VariableAttributes{}, 0, nil, statusError(op, status, ErrFirmware)
}

// GetNextVariableName calls EFI_RUNTIME_SERVICES.GetNextVariableName(),
// [ErrNotFound] is returned once the enumeration is complete.
// See: https://uefi.org/specs/UEFI/2.11/08_Services_Runtime_Services.html#getnextvariablename
func (s *RuntimeServices) GetNextVariableName(name *string, guid *GUID) (err error) {
	const op = "EFI_RUNTIME_SERVICES.GetNextVariableName"

	var status Status

	last := toUTF16(*name)
	size := uint64(max(variableNameSize, len(last)*2))

	for i := 0; i < maxVariableAttempts; i++ {
		nameBuf := make([]uint16, size/2)
		copy(nameBuf, last)

		status = s.table.GetNextVariableName(&size, nameBuf, guid)

		if status == EFI_BUFFER_TOO_SMALL {
			continue
		}

		if err = parseStatus(op, status); err != nil {
			return
		}

		*name = fromUTF16(nameBuf)

		return
	}

	return statusError(op, status, ErrFirmware)
}

// Variables returns all UEFI variable identifiers in firmware enumeration
// order.
func (s *RuntimeServices) Variables() (vars []VariableName, err error) {
	var name string
	var guid GUID

	for {
		if err = s.GetNextVariableName(&name, &guid); err != nil {
			break
		}

		vars = append(vars, VariableName{
			Name: name,
			GUID: guid,
		})
	}

	if errors.Is(err, ErrNotFound) {
		err = nil
	}

	return
}

// SetVariable calls EFI_RUNTIME_SERVICES.SetVariable().
func (s *RuntimeServices) SetVariable(name string, guid GUID, attr VariableAttributes, data []byte) (err error) {
	status := s.table.SetVariable(toUTF16(name), guid, attr.Uint32(), data)
	return parseStatus("EFI_RUNTIME_SERVICES.SetVariable", status)
}

// DeleteVariable deletes a UEFI variable through
// EFI_RUNTIME_SERVICES.SetVariable().
func (s *RuntimeServices) DeleteVariable(name string, guid GUID) (err error) {
	return s.SetVariable(name, guid, VariableAttributes{}, nil)
}

// QueryVariableInfo calls EFI_RUNTIME_SERVICES.QueryVariableInfo().
func (s *RuntimeServices) QueryVariableInfo(attr VariableAttributes) (info *VariableInfo, err error) {
	info = &VariableInfo{}

	status := s.table.QueryVariableInfo(attr.Uint32(),
		&info.MaximumVariableStorageSize,
		&info.RemainingVariableStorageSize,
		&info.MaximumVariableSize,
	)

	if err = parseStatus("EFI_RUNTIME_SERVICES.QueryVariableInfo", status); err != nil {
		return nil, err
	}

	return
}
