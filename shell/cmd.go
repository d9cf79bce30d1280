// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package shell

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"text/tabwriter"
)

// CmdFn represents a command handler.
type CmdFn func(iface *Interface, arg []string) (res string, err error)

// Cmd represents a shell command.
type Cmd struct {
	// Name is the command name, used for exact matching when Pattern is
	// nil
	Name string
	// Args is the number of Pattern submatches passed to Fn
	Args int
	// Pattern is the command matching expression
	Pattern *regexp.Regexp
	// Syntax is the argument syntax shown in help
	Syntax string
	// Help is the command description
	Help string
	// Fn is the command handler
	Fn CmdFn
}

var (
	mu   sync.Mutex
	cmds = make(map[string]*Cmd)
)

// Add registers a terminal interface command, a command with the same name
// is replaced.
func Add(cmd Cmd) {
	mu.Lock()
	defer mu.Unlock()

	cmds[cmd.Name] = &cmd
}

func list() (c []*Cmd) {
	mu.Lock()
	defer mu.Unlock()

	for _, cmd := range cmds {
		c = append(c, cmd)
	}

	sort.Slice(c, func(i, j int) bool {
		return c[i].Name < c[j].Name
	})

	return
}

func match(line string) (cmd *Cmd, arg []string) {
	for _, c := range list() {
		if c.Pattern == nil {
			if c.Name == line {
				return c, nil
			}
		} else if m := c.Pattern.FindStringSubmatch(line); len(m) > 0 && (len(m)-1 == c.Args) {
			return c, m[1:]
		}
	}

	return
}

// Help returns the list of registered commands.
func Help(_ *Interface, _ []string) (string, error) {
	var help bytes.Buffer

	t := tabwriter.NewWriter(&help, 16, 8, 0, '\t', tabwriter.TabIndent)

	for _, cmd := range list() {
		_, _ = fmt.Fprintf(t, "%s\t%s\t # %s\n", cmd.Name, cmd.Syntax, cmd.Help)
	}

	_ = t.Flush()

	return help.String(), nil
}
