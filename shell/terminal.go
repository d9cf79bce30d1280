// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package shell implements a terminal console handler for user defined
// commands.
package shell

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/usbarmory/go-uefi/uefi"
)

func init() {
	Add(Cmd{
		Name: "help",
		Help: "this help",
		Fn:   Help,
	})
}

// ErrUnknownCommand is returned for lines not matching any registered
// command.
var ErrUnknownCommand = errors.New("unknown command, type `help`")

// Interface represents a terminal interface.
type Interface struct {
	// Banner represents the welcome message
	Banner string

	// Log represents the interface log file
	Log *os.File

	// ReadWriter represents the terminal connection
	ReadWriter io.ReadWriter

	// VT100 enables prompt coloring and output through the terminal
	VT100 bool

	// UEFI represents the services instance commands operate on
	UEFI *uefi.Services

	// Runtime represents the services instance left once Boot Services
	// are exited
	Runtime *uefi.Runtime
}

// Exec executes a single command line, a command returning [io.EOF] ends
// the session.
func (iface *Interface) Exec(line string) (res string, err error) {
	cmd, arg := match(line)

	if cmd == nil {
		return "", ErrUnknownCommand
	}

	return cmd.Fn(iface, arg)
}

func (iface *Interface) handleLine(line string, w io.Writer) (err error) {
	res, err := iface.Exec(line)

	if len(res) > 0 {
		fmt.Fprintln(w, res)
	}

	return
}

func (iface *Interface) readLine(t *term.Terminal, w io.Writer) error {
	s, err := t.ReadLine()

	if err == io.EOF {
		return err
	}

	if err != nil {
		log.Printf("readline error, %v", err)
		return nil
	}

	if len(s) == 0 {
		return nil
	}

	if err = iface.handleLine(s, w); err != nil {
		if err == io.EOF {
			return err
		}

		fmt.Fprintf(w, "command error, %v\n", err)
		return nil
	}

	return nil
}

// Start handles registered commands over the interface ReadWriter, until
// the connection or a command returns [io.EOF].
func (iface *Interface) Start() {
	var w io.Writer

	t := term.NewTerminal(iface.ReadWriter, "> ")
	w = iface.ReadWriter

	if iface.VT100 {
		t.SetPrompt(string(t.Escape.Red) + "> " + string(t.Escape.Reset))
		w = t
	}

	help, _ := Help(iface, nil)

	fmt.Fprintf(t, "\n%s\n\n", iface.Banner)
	fmt.Fprintf(t, "%s\n", help)

	for {
		if err := iface.readLine(t, w); err != nil {
			return
		}
	}
}
