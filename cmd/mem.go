// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"fmt"
	"log"
	"regexp"
	"strconv"

	"github.com/usbarmory/go-uefi/shell"
	"github.com/usbarmory/go-uefi/uefi"
)

func init() {
	shell.Add(shell.Cmd{
		Name:    "memmap",
		Args:    1,
		Pattern: regexp.MustCompile(`^memmap(?: (e820))?$`),
		Syntax:  "(e820)?",
		Help:    "EFI_BOOT_SERVICES.GetMemoryMap()",
		Fn:      memmapCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "alloc",
		Args:    2,
		Pattern: regexp.MustCompile(`^alloc ([[:xdigit:]]+) (\d+)$`),
		Syntax:  "<hex offset> <size>",
		Help:    "EFI_BOOT_SERVICES.AllocatePages()",
		Fn:      allocCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "free",
		Args:    2,
		Pattern: regexp.MustCompile(`^free ([[:xdigit:]]+) (\d+)$`),
		Syntax:  "<hex offset> <size>",
		Help:    "EFI_BOOT_SERVICES.FreePages()",
		Fn:      freeCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "pool",
		Args:    1,
		Pattern: regexp.MustCompile(`^pool (\d+)$`),
		Syntax:  "<size>",
		Help:    "EFI_BOOT_SERVICES.AllocatePool()/FreePool()",
		Fn:      poolCmd,
	})
}

func memmapCmd(iface *shell.Interface, arg []string) (res string, err error) {
	var buf bytes.Buffer
	var memoryMap *uefi.MemoryMap

	s, err := services(iface)

	if err != nil {
		return
	}

	if memoryMap, err = s.Boot.GetMemoryMap(); err != nil {
		return
	}

	if arg[0] == "e820" {
		e820, err := memoryMap.E820()

		if err != nil {
			return "", err
		}

		fmt.Fprintf(&buf, "Start            End              Type\n")

		for _, e := range e820 {
			fmt.Fprintf(&buf, "%016x %016x %v\n", e.Addr, e.Addr+e.Size-1, e.MemType)
		}

		return buf.String(), nil
	}

	fmt.Fprintf(&buf, "Type Start            End              Pages            Attributes\n")

	for _, desc := range memoryMap.Descriptors {
		fmt.Fprintf(&buf, "%02d   %016x %016x %016x %016x\n",
			desc.Type, desc.PhysicalStart, desc.PhysicalEnd()-1, desc.NumberOfPages, desc.Attribute)
	}

	return buf.String(), err
}

func parseRange(arg []string) (addr uint64, size uint64, err error) {
	if addr, err = strconv.ParseUint(arg[0], 16, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid address, %v", err)
	}

	if size, err = strconv.ParseUint(arg[1], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid size, %v", err)
	}

	if addr%uefi.PageSize != 0 {
		return 0, 0, fmt.Errorf("address must be %d bytes aligned", uefi.PageSize)
	}

	return
}

func allocCmd(iface *shell.Interface, arg []string) (res string, err error) {
	s, err := services(iface)

	if err != nil {
		return
	}

	addr, size, err := parseRange(arg)

	if err != nil {
		return
	}

	log.Printf("allocating memory range %#08x - %#08x", addr, addr+size)

	_, err = s.Boot.AllocatePages(uefi.Allocation{
		Type:       uefi.AllocateAddress,
		MemoryType: uefi.EfiLoaderData,
		Address:    addr,
		Pages:      uefi.Pages(int(size)),
	})

	return
}

func freeCmd(iface *shell.Interface, arg []string) (res string, err error) {
	s, err := services(iface)

	if err != nil {
		return
	}

	addr, size, err := parseRange(arg)

	if err != nil {
		return
	}

	log.Printf("freeing memory range %#08x - %#08x", addr, addr+size)

	return "", s.Boot.FreePages(addr, uefi.Pages(int(size)))
}

func poolCmd(iface *shell.Interface, arg []string) (res string, err error) {
	s, err := services(iface)

	if err != nil {
		return
	}

	size, err := strconv.Atoi(arg[0])

	if err != nil {
		return "", fmt.Errorf("invalid size, %v", err)
	}

	addr, err := s.Boot.AllocatePool(uefi.EfiLoaderData, size)

	if err != nil {
		return
	}

	if err = s.Boot.FreePool(addr); err != nil {
		return
	}

	return fmt.Sprintf("allocated and released %d bytes at %#08x", size, addr), nil
}
