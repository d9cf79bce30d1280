// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"time"

	"github.com/hako/durafmt"

	"github.com/usbarmory/go-uefi/shell"
)

// The following hooks are board specific, therefore they are defined
// elsewhere in the respective target files.
var (
	date   func(epoch int64)
	uptime func() (ns int64)
)

func init() {
	shell.Add(shell.Cmd{
		Name: "build",
		Help: "build information",
		Fn:   buildInfoCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "exit, quit",
		Args:    1,
		Pattern: regexp.MustCompile(`^(exit|quit)$`),
		Help:    "close session",
		Fn:      exitCmd,
	})

	shell.Add(shell.Cmd{
		Name: "stack",
		Help: "goroutine stack trace (current)",
		Fn:   stackCmd,
	})

	shell.Add(shell.Cmd{
		Name: "stackall",
		Help: "goroutine stack trace (all)",
		Fn:   stackallCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "date",
		Args:    1,
		Pattern: regexp.MustCompile(`^date(.*)`),
		Syntax:  "(time in RFC339 format)?",
		Help:    "show/change runtime date and time",
		Fn:      dateCmd,
	})

	shell.Add(shell.Cmd{
		Name: "uptime",
		Help: "show how long the system has been running",
		Fn:   uptimeCmd,
	})
}

func buildInfoCmd(_ *shell.Interface, _ []string) (string, error) {
	if bi, ok := debug.ReadBuildInfo(); ok {
		return bi.String(), nil
	}

	return "", nil
}

func exitCmd(_ *shell.Interface, _ []string) (string, error) {
	return fmt.Sprintf("Goodbye from %s/%s", runtime.GOOS, runtime.GOARCH), io.EOF
}

func stackCmd(_ *shell.Interface, _ []string) (string, error) {
	return string(debug.Stack()), nil
}

func stackallCmd(_ *shell.Interface, _ []string) (string, error) {
	buf := new(bytes.Buffer)
	pprof.Lookup("goroutine").WriteTo(buf, 1)

	return buf.String(), nil
}

func dateCmd(_ *shell.Interface, arg []string) (res string, err error) {
	if len(arg[0]) > 1 {
		t, err := time.Parse(time.RFC3339, arg[0][1:])

		if err != nil {
			return "", err
		}

		if date == nil {
			return "", errors.New("unsupported")
		}

		date(t.UnixNano())
	}

	return time.Now().Format(time.RFC3339), nil
}

func uptimeCmd(_ *shell.Interface, _ []string) (string, error) {
	if uptime == nil {
		return "", errors.New("unsupported")
	}

	return durafmt.Parse(time.Duration(uptime())).String(), nil
}
