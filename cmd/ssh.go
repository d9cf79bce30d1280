// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package cmd

import (
	"errors"
	"fmt"
	"log"
	"regexp"

	"github.com/gliderlabs/ssh"

	"github.com/usbarmory/go-uefi/shell"
)

// SSHAddress represents the SSH server listening address
var SSHAddress = ":22"

// AuthorizedKey represents the public key, in authorized_keys format,
// allowed to open SSH sessions.
var AuthorizedKey string

func init() {
	shell.Add(shell.Cmd{
		Name:    "ssh",
		Args:    1,
		Pattern: regexp.MustCompile(`^ssh (.+)$`),
		Syntax:  "<authorized key>",
		Help:    "start SSH server (requires net)",
		Fn:      sshCmd,
	})
}

func sshSession(parent *shell.Interface, s ssh.Session) {
	if _, _, isPty := s.Pty(); !isPty {
		fmt.Fprintln(s, "PTY required")
		s.Exit(1)
		return
	}

	log.Printf("ssh session from %s@%s", s.User(), s.RemoteAddr())

	iface := &shell.Interface{
		Banner:     Banner,
		ReadWriter: s,
		VT100:      true,
		UEFI:       parent.UEFI,
		Runtime:    parent.Runtime,
	}

	iface.Start()

	log.Printf("ssh session from %s@%s closed", s.User(), s.RemoteAddr())
}

func sshCmd(iface *shell.Interface, arg []string) (res string, err error) {
	authorized, _, _, _, err := ssh.ParseAuthorizedKey([]byte(arg[0]))

	if err != nil {
		return "", fmt.Errorf("invalid key, %v", err)
	}

	if len(AuthorizedKey) != 0 {
		return "", errors.New("server already started")
	}

	AuthorizedKey = arg[0]

	srv := &ssh.Server{
		Addr: SSHAddress,
		Handler: func(s ssh.Session) {
			sshSession(iface, s)
		},
		PublicKeyHandler: func(_ ssh.Context, key ssh.PublicKey) bool {
			return ssh.KeysEqual(key, authorized)
		},
	}

	go func() {
		log.Printf("starting ssh server on %s", SSHAddress)

		if err := srv.ListenAndServe(); err != nil {
			log.Printf("ssh server error, %v", err)
		}
	}()

	return fmt.Sprintf("ssh server started on %s", SSHAddress), nil
}
