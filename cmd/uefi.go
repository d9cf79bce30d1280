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
	"time"

	"github.com/usbarmory/go-uefi/shell"
	"github.com/usbarmory/go-uefi/uefi"
)

func init() {
	shell.Add(shell.Cmd{
		Name: "uefi",
		Help: "UEFI information",
		Fn:   uefiCmd,
	})

	shell.Add(shell.Cmd{
		Name: "image",
		Help: "EFI Loaded Image Protocol information",
		Fn:   imageCmd,
	})

	shell.Add(shell.Cmd{
		Name: "handles",
		Help: "EFI_BOOT_SERVICES.LocateHandle()",
		Fn:   handlesCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "protocol",
		Args:    1,
		Pattern: regexp.MustCompile(`^protocol ([[:xdigit:]]{8}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{12})$`),
		Syntax:  "<registry format GUID>",
		Help:    "EFI_BOOT_SERVICES.LocateProtocol()",
		Fn:      locateCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "timer",
		Args:    1,
		Pattern: regexp.MustCompile(`^timer (\d+)$`),
		Syntax:  "<ms>",
		Help:    "EFI_BOOT_SERVICES.WaitForEvent() on a timer event",
		Fn:      timerCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "watchdog",
		Args:    1,
		Pattern: regexp.MustCompile(`^watchdog (\d+)$`),
		Syntax:  "<seconds>",
		Help:    "EFI_BOOT_SERVICES.SetWatchdogTimer(), 0 disables",
		Fn:      watchdogCmd,
	})

	shell.Add(shell.Cmd{
		Name: "handoff",
		Help: "EFI_BOOT_SERVICES.ExitBootServices()",
		Fn:   handoffCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "reset",
		Args:    1,
		Pattern: regexp.MustCompile(`^reset(?: (cold|warm))?$`),
		Help:    "EFI_RUNTIME_SERVICES.ResetSystem()",
		Syntax:  "(cold|warm)?",
		Fn:      resetCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "halt, shutdown",
		Args:    1,
		Pattern: regexp.MustCompile(`^(halt|shutdown)$`),
		Help:    "shutdown system",
		Fn:      shutdownCmd,
	})
}

func uefiCmd(iface *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	s, err := services(iface)

	if err != nil {
		return
	}

	t := s.SystemTable
	vendor, err := s.FirmwareVendor()

	if err != nil {
		return
	}

	fmt.Fprintf(&buf, "UEFI Revision ......: %s\n", t.Header.RevisionString())
	fmt.Fprintf(&buf, "Firmware Vendor ....: %s\n", vendor)
	fmt.Fprintf(&buf, "Firmware Revision ..: %#x\n", t.FirmwareRevision)
	fmt.Fprintf(&buf, "Runtime Services  ..: %#x\n", t.RuntimeServices)
	fmt.Fprintf(&buf, "Boot Services ......: %#x\n", t.BootServices)

	if gop, err := s.Directory.GraphicsOutput(); err == nil {
		if m, err := gop.GetMode(); err == nil {
			if info, err := gop.GetInfo(); err == nil {
				fmt.Fprintf(&buf, "Frame Buffer .......: %dx%d @ %#x\n",
					info.HorizontalResolution, info.VerticalResolution,
					m.FrameBufferBase)
			}
		}

		gop.Close()
	}

	fmt.Fprintf(&buf, "Configuration Tables: %#x\n", t.ConfigurationTable)

	c, err := s.ConfigurationTables()

	for _, t := range c {
		fmt.Fprintf(&buf, "  %s (%#x)\n", uefi.Name(t.GUID), t.VendorTable)
	}

	return buf.String(), err
}

func imageCmd(iface *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	s, err := services(iface)

	if err != nil {
		return
	}

	image, err := s.LoadedImage()

	if err != nil {
		return
	}

	options, err := s.LoadOptions()

	if err != nil {
		return
	}

	fmt.Fprintf(&buf, "Image Handle .......: %#x\n", s.ImageHandle())
	fmt.Fprintf(&buf, "Image Base .........: %#x\n", image.ImageBase)
	fmt.Fprintf(&buf, "Image Size .........: %#x\n", image.ImageSize)
	fmt.Fprintf(&buf, "Code/Data Type .....: %s/%s\n", image.ImageCodeType, image.ImageDataType)
	fmt.Fprintf(&buf, "Load Options .......: %s\n", options)

	return buf.String(), nil
}

func handlesCmd(iface *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	s, err := services(iface)

	if err != nil {
		return
	}

	handles, err := s.Directory.AllHandles()

	if err != nil {
		return
	}

	for _, h := range handles {
		guids, err := s.Directory.ProtocolsPerHandle(h)

		if err != nil {
			return "", err
		}

		fmt.Fprintf(&buf, "%#x\n", h)

		for _, guid := range guids {
			fmt.Fprintf(&buf, "  %s\n", uefi.Name(guid))
		}
	}

	return buf.String(), nil
}

func locateCmd(iface *shell.Interface, arg []string) (res string, err error) {
	s, err := services(iface)

	if err != nil {
		return
	}

	guid, err := uefi.ParseGUID(arg[0])

	if err != nil {
		return
	}

	addr, err := s.Directory.LocateProtocol(guid)

	if err != nil {
		return
	}

	return fmt.Sprintf("%s: %#08x", uefi.Name(guid), addr), nil
}

func timerCmd(iface *shell.Interface, arg []string) (res string, err error) {
	s, err := services(iface)

	if err != nil {
		return
	}

	ms, err := strconv.ParseUint(arg[0], 10, 32)

	if err != nil {
		return "", fmt.Errorf("invalid timeout, %v", err)
	}

	e, err := s.Boot.CreateTimer(uefi.TimerRelative, time.Duration(ms)*time.Millisecond)

	if err != nil {
		return
	}

	defer s.Boot.CloseEvent(e)

	if _, err = s.Boot.WaitForEvent(e); err != nil {
		return
	}

	return fmt.Sprintf("timer expired after %dms", ms), nil
}

func watchdogCmd(iface *shell.Interface, arg []string) (res string, err error) {
	s, err := services(iface)

	if err != nil {
		return
	}

	sec, err := strconv.Atoi(arg[0])

	if err != nil {
		return "", fmt.Errorf("invalid timeout, %v", err)
	}

	return "", s.Boot.SetWatchdogTimer(sec)
}

func handoffCmd(iface *shell.Interface, _ []string) (res string, err error) {
	s, err := services(iface)

	if err != nil {
		return
	}

	log.Printf("exiting EFI boot services")

	rt, m, err := s.Handoff()

	if err != nil {
		return "", fmt.Errorf("could not exit EFI boot services, %v", err)
	}

	iface.Runtime = rt

	return fmt.Sprintf("exited EFI boot services (%d memory map entries)", len(m.Descriptors)), nil
}

func resetCmd(iface *shell.Interface, arg []string) (_ string, err error) {
	var resetType uefi.ResetType

	rt, err := runtimeServices(iface)

	if err != nil {
		return
	}

	switch arg[0] {
	case "cold":
		resetType = uefi.EfiResetCold
	case "warm", "":
		resetType = uefi.EfiResetWarm
	case "shutdown":
		resetType = uefi.EfiResetShutdown
	}

	log.Printf("performing system reset type %d", resetType)

	return "", rt.ResetSystem(resetType, uefi.EFI_SUCCESS)
}

func shutdownCmd(iface *shell.Interface, _ []string) (_ string, err error) {
	return resetCmd(iface, []string{"shutdown"})
}
