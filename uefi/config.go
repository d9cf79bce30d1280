// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// maximum number of configuration table entries
const maxTableEntries = 1024

// ConfigurationTable represents an EFI Configuration Table.
type ConfigurationTable struct {
	GUID        GUID
	VendorTable uint64
}

// RegistryFormat returns the table GUID in registry format.
func (t *ConfigurationTable) RegistryFormat() string {
	return t.GUID.String()
}

func configurationTables(fw Firmware, st *SystemTable) (c []*ConfigurationTable, err error) {
	if st.NumberOfTableEntries == 0 {
		return
	}

	if st.ConfigurationTable == 0 || st.NumberOfTableEntries > maxTableEntries {
		return nil, fmt.Errorf("%w, invalid EFI Configuration Table", ErrInvalidTable)
	}

	entrySize := binary.Size(&ConfigurationTable{})
	tableSize := entrySize * int(st.NumberOfTableEntries)

	buf, err := fw.Bytes(st.ConfigurationTable, tableSize)

	if err != nil {
		return
	}

	for i := 0; i < tableSize; i += entrySize {
		t := &ConfigurationTable{}

		if err = unmarshalBinary(buf[i:i+entrySize], t); err != nil {
			return
		}

		c = append(c, t)
	}

	return
}

func locateConfiguration(fw Firmware, st *SystemTable, guid GUID) (t *ConfigurationTable, err error) {
	c, err := configurationTables(fw, st)

	if err != nil {
		return
	}

	for _, t := range c {
		if t.GUID == guid {
			return t, nil
		}
	}

	return nil, fmt.Errorf("%s, %w", Name(guid), ErrNotFound)
}

const snpSignature = 0x45444d41

// SNPConfigurationTable represents an EFI SNP Confidential Computing Blob
// Configuration Table.
type SNPConfigurationTable struct {
	Header                     uint32
	Version                    uint16
	_                          uint16
	SecretsPagePhysicalAddress uint64
	SecretsPageSize            uint32
	_                          uint32
	CPUIDPagePhysicalAddress   uint64
	CPUIDPageSize              uint32
	_                          uint32
}

// GetSNPConfiguration returns the EFI SNP Confidential Computing Blob
// Configuration Table.
func (s *Services) GetSNPConfiguration() (snp *SNPConfigurationTable, err error) {
	var t *ConfigurationTable

	if t, err = s.LocateConfiguration(EFI_SEV_SNP_CC_BLOB_GUID); err != nil {
		return
	}

	snp = &SNPConfigurationTable{}

	if err = decode(s.fw, snp, t.VendorTable); err != nil {
		return nil, err
	}

	if snp.Header != snpSignature || snp.Version < 2 {
		return snp, errors.New("EFI SNP Configuration Table is invalid")
	}

	return
}
