// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/usbarmory/go-uefi/shell"
	"github.com/usbarmory/go-uefi/uefi"
)

func init() {
	shell.Add(shell.Cmd{
		Name: "vars",
		Help: "EFI_RUNTIME_SERVICES.GetNextVariableName()",
		Fn:   varsCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "var",
		Args:    2,
		Pattern: regexp.MustCompile(`^var ([[:xdigit:]]{8}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{12}) (\S+)$`),
		Syntax:  "<registry format GUID> <name>",
		Help:    "EFI_RUNTIME_SERVICES.GetVariable()",
		Fn:      varCmd,
	})

	shell.Add(shell.Cmd{
		Name: "varinfo",
		Help: "EFI_RUNTIME_SERVICES.QueryVariableInfo()",
		Fn:   varInfoCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "time",
		Args:    1,
		Pattern: regexp.MustCompile(`^time(?: (.+))?$`),
		Syntax:  "(time in RFC339 format)?",
		Help:    "EFI_RUNTIME_SERVICES.GetTime()/SetTime()",
		Fn:      timeCmd,
	})
}

func varsCmd(iface *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	rt, err := runtimeServices(iface)

	if err != nil {
		return
	}

	vars, err := rt.Variables()

	if err != nil {
		return
	}

	for _, v := range vars {
		fmt.Fprintf(&buf, "%s %s\n", v.GUID, v.Name)
	}

	return buf.String(), nil
}

func varCmd(iface *shell.Interface, arg []string) (res string, err error) {
	var buf bytes.Buffer

	rt, err := runtimeServices(iface)

	if err != nil {
		return
	}

	guid, err := uefi.ParseGUID(arg[0])

	if err != nil {
		return
	}

	attr, size, data, err := rt.GetVariable(arg[1], guid, true)

	if err != nil {
		return
	}

	fmt.Fprintf(&buf, "Attributes: %#x Size: %d\n", attr.Uint32(), size)
	fmt.Fprint(&buf, hex.Dump(data))

	return buf.String(), nil
}

func varInfoCmd(iface *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	rt, err := runtimeServices(iface)

	if err != nil {
		return
	}

	attr := uefi.VariableAttributes{
		NonVolatile:          true,
		BootServiceAccess:    true,
		RuntimeServiceAccess: true,
	}

	info, err := rt.QueryVariableInfo(attr)

	if err != nil {
		return
	}

	fmt.Fprintf(&buf, "Maximum Storage ....: %d\n", info.MaximumVariableStorageSize)
	fmt.Fprintf(&buf, "Remaining Storage ..: %d\n", info.RemainingVariableStorageSize)
	fmt.Fprintf(&buf, "Maximum Size .......: %d\n", info.MaximumVariableSize)

	return buf.String(), nil
}

func timeCmd(iface *shell.Interface, arg []string) (res string, err error) {
	rt, err := runtimeServices(iface)

	if err != nil {
		return
	}

	if len(arg[0]) > 0 {
		t, err := time.Parse(time.RFC3339, arg[0])

		if err != nil {
			return "", err
		}

		if err = rt.SetTime(t); err != nil {
			return "", err
		}
	}

	t, _, err := rt.GetTime()

	if err != nil {
		return
	}

	return t.Time().Format(time.RFC3339), nil
}
