// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

// Protocol is implemented by protocol interface layouts, it binds a layout to
// its protocol identifier.
type Protocol interface {
	GUID() GUID
}

// Protocol GUIDs
var (
	EFI_LOADED_IMAGE_PROTOCOL_GUID             = MustParseGUID("5b1b31a1-9562-11d2-8e3f-00a0c969723b")
	EFI_LOADED_IMAGE_DEVICE_PATH_PROTOCOL_GUID = MustParseGUID("bc62157e-3e33-4fec-9920-2d3b36d750df")
	EFI_DEVICE_PATH_PROTOCOL_GUID              = MustParseGUID("09576e91-6d3f-11d2-8e39-00a0c969723b")
	EFI_SIMPLE_FILE_SYSTEM_PROTOCOL_GUID       = MustParseGUID("964e5b22-6459-11d2-8e39-00a0c969723b")
	EFI_SIMPLE_TEXT_INPUT_PROTOCOL_GUID        = MustParseGUID("387477c1-69c7-11d2-8e39-00a0c969723b")
	EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL_GUID       = MustParseGUID("387477c2-69c7-11d2-8e39-00a0c969723b")
	EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID          = MustParseGUID("9042a9de-23dc-4a38-96fb-7aded080516a")
	EFI_SIMPLE_NETWORK_PROTOCOL_GUID           = MustParseGUID("a19832b9-ac25-11d3-9a2d-0090273fc14d")
	EFI_BLOCK_IO_PROTOCOL_GUID                 = MustParseGUID("964e5b21-6459-11d2-8e39-00a0c969723b")
	EFI_RNG_PROTOCOL_GUID                      = MustParseGUID("3152bca5-eade-433d-862e-c01cdc291f44")
)

// Information types
var (
	EFI_FILE_INFO_ID = MustParseGUID("09576e92-6d3f-11d2-8e39-00a0c969723b")
)

// Variable namespaces
var (
	EFI_GLOBAL_VARIABLE_GUID = MustParseGUID("8be4df61-93ca-11d2-aa0d-00e098032b8c")
)

// Configuration table GUIDs
var (
	ACPI_TABLE_GUID          = MustParseGUID("eb9d2d30-2d88-11d3-9a16-0090273fc14d")
	EFI_ACPI_20_TABLE_GUID   = MustParseGUID("8868e871-e4f1-11d3-bc22-0080c73c8881")
	SMBIOS_TABLE_GUID        = MustParseGUID("eb9d2d31-2d88-11d3-9a16-0090273fc14d")
	SMBIOS3_TABLE_GUID       = MustParseGUID("f2fd1544-9794-4a2c-992e-e5bbcf20e394")
	EFI_DTB_TABLE_GUID       = MustParseGUID("b1b621d5-f19c-41a5-830b-d9152c69aae0")
	EFI_SEV_SNP_CC_BLOB_GUID = MustParseGUID("067b1f5f-cf26-44c5-8554-93d777912d42")
)

var names = map[GUID]string{
	EFI_LOADED_IMAGE_PROTOCOL_GUID:             "EFI_LOADED_IMAGE_PROTOCOL",
	EFI_LOADED_IMAGE_DEVICE_PATH_PROTOCOL_GUID: "EFI_LOADED_IMAGE_DEVICE_PATH_PROTOCOL",
	EFI_DEVICE_PATH_PROTOCOL_GUID:              "EFI_DEVICE_PATH_PROTOCOL",
	EFI_SIMPLE_FILE_SYSTEM_PROTOCOL_GUID:       "EFI_SIMPLE_FILE_SYSTEM_PROTOCOL",
	EFI_SIMPLE_TEXT_INPUT_PROTOCOL_GUID:        "EFI_SIMPLE_TEXT_INPUT_PROTOCOL",
	EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL_GUID:       "EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL",
	EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID:          "EFI_GRAPHICS_OUTPUT_PROTOCOL",
	EFI_SIMPLE_NETWORK_PROTOCOL_GUID:           "EFI_SIMPLE_NETWORK_PROTOCOL",
	EFI_BLOCK_IO_PROTOCOL_GUID:                 "EFI_BLOCK_IO_PROTOCOL",
	EFI_RNG_PROTOCOL_GUID:                      "EFI_RNG_PROTOCOL",
	EFI_FILE_INFO_ID:                           "EFI_FILE_INFO",
	EFI_GLOBAL_VARIABLE_GUID:                   "EFI_GLOBAL_VARIABLE",
	ACPI_TABLE_GUID:                            "ACPI_TABLE",
	EFI_ACPI_20_TABLE_GUID:                     "EFI_ACPI_20_TABLE",
	SMBIOS_TABLE_GUID:                          "SMBIOS_TABLE",
	SMBIOS3_TABLE_GUID:                         "SMBIOS3_TABLE",
	EFI_DTB_TABLE_GUID:                         "EFI_DTB_TABLE",
	EFI_SEV_SNP_CC_BLOB_GUID:                   "EFI_SEV_SNP_CC_BLOB",
}

// Name returns the symbolic name of a well-known GUID, or its registry format
// string representation otherwise.
func Name(guid GUID) string {
	if name, ok := names[guid]; ok {
		return name
	}

	return guid.String()
}
