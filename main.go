// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/usbarmory/go-uefi/cmd"
	"github.com/usbarmory/go-uefi/shell"
	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/x64"
)

// set at build time
var (
	Build    string
	Revision string
)

func init() {
	log.SetFlags(0)

	cmd.Banner = fmt.Sprintf("%s/%s (%s) • UEFI • %s %s",
		runtime.GOOS, runtime.GOARCH, runtime.Version(), Revision, Build)
}

func main() {
	logFile, _ := os.OpenFile("/runtime.log", os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	s, err := x64.Open()

	if err != nil {
		log.Fatalf("could not initialize EFI services, %v", err)
	}

	// the firmware watchdog would reset the platform during the session
	if err := s.Boot.SetWatchdogTimer(0); err != nil {
		log.Printf("could not disable watchdog, %v", err)
	}

	if vendor, err := s.FirmwareVendor(); err == nil {
		log.Printf("UEFI %s (%s)", s.SystemTable.Header.RevisionString(), vendor)
	}

	iface := &shell.Interface{
		Banner:     cmd.Banner,
		Log:        logFile,
		ReadWriter: s.Console,
		UEFI:       s,
	}

	iface.Start()

	if s.Available() {
		// return control to the firmware boot manager
		if err := s.Boot.Exit(uefi.EFI_SUCCESS); err != nil {
			log.Printf("could not exit image, %v", err)
		}
	}

	runtime.Exit(0)
}
