// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"errors"
	"testing"

	"github.com/usbarmory/go-uefi/uefi"
)

func TestConfigurationTables(t *testing.T) {
	fw, s := open(t)

	c, err := s.ConfigurationTables()

	if err != nil || len(c) != 0 {
		t.Fatalf("unexpected tables %v, %v", c, err)
	}

	acpi := fw.Alloc(36)
	fw.AddConfigurationTable(uefi.EFI_ACPI_20_TABLE_GUID, acpi)
	fw.AddConfigurationTable(uefi.SMBIOS3_TABLE_GUID, fw.Alloc(24))

	// the system table is validated again after the update
	if s, err = fw.Open(); err != nil {
		t.Fatal(err)
	}

	if c, err = s.ConfigurationTables(); err != nil || len(c) != 2 {
		t.Fatalf("unexpected tables %v, %v", c, err)
	}

	table, err := s.LocateConfiguration(uefi.EFI_ACPI_20_TABLE_GUID)

	if err != nil {
		t.Fatal(err)
	}

	if table.VendorTable != acpi || table.RegistryFormat() != "8868e871-e4f1-11d3-bc22-0080c73c8881" {
		t.Fatalf("unexpected table %+v", table)
	}

	if _, err = s.LocateConfiguration(uefi.EFI_DTB_TABLE_GUID); !errors.Is(err, uefi.ErrNotFound) {
		t.Fatalf("unexpected error %v", err)
	}

	rt, _, err := s.Handoff()

	if err != nil {
		t.Fatal(err)
	}

	if _, err = rt.LocateConfiguration(uefi.SMBIOS3_TABLE_GUID); err != nil {
		t.Fatal(err)
	}
}

func TestSNPConfiguration(t *testing.T) {
	fw, s := open(t)

	if _, err := s.GetSNPConfiguration(); !errors.Is(err, uefi.ErrNotFound) {
		t.Fatalf("unexpected error %v", err)
	}

	snp := fw.Write(&uefi.SNPConfigurationTable{
		Header:                     0x45444d41,
		Version:                    2,
		SecretsPagePhysicalAddress: 0x80d000,
		SecretsPageSize:            uefi.PageSize,
	})

	fw.AddConfigurationTable(uefi.EFI_SEV_SNP_CC_BLOB_GUID, snp)

	s, err := fw.Open()

	if err != nil {
		t.Fatal(err)
	}

	c, err := s.GetSNPConfiguration()

	if err != nil {
		t.Fatal(err)
	}

	if c.SecretsPagePhysicalAddress != 0x80d000 {
		t.Fatalf("unexpected secrets page %#x", c.SecretsPagePhysicalAddress)
	}
}
