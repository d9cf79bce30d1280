// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64 && debug

package cmd

import (
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/arl/statsviz"

	"github.com/usbarmory/go-uefi/shell"
)

// DebugAddress represents the runtime statistics HTTP server address
var DebugAddress = ":80"

func init() {
	if err := statsviz.RegisterDefault(); err != nil {
		log.Printf("could not register statsviz, %v", err)
	}

	shell.Add(shell.Cmd{
		Name: "debug",
		Help: "start runtime statistics HTTP server (requires net)",
		Fn:   debugCmd,
	})
}

func debugCmd(_ *shell.Interface, _ []string) (res string, err error) {
	go func() {
		if err := http.ListenAndServe(DebugAddress, nil); err != nil {
			log.Printf("debug server error, %v", err)
		}
	}()

	return "debug server started on " + DebugAddress + "/debug/statsviz", nil
}
