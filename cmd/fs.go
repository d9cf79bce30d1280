// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"fmt"
	"io/fs"
	"log"
	"path"
	"regexp"
	"strings"

	"github.com/usbarmory/go-uefi/shell"
	"github.com/usbarmory/go-uefi/uapi"
	"github.com/usbarmory/go-uefi/uefi"
)

const WindowsBootManager = `\EFI\Microsoft\Boot\bootmgfw.efi`

// maximum file size displayed by cat
const maxCatSize = 1 << 20

func init() {
	shell.Add(shell.Cmd{
		Name:    "ls",
		Args:    1,
		Pattern: regexp.MustCompile(`^ls(?: (\S+))?$`),
		Syntax:  "(path)?",
		Help:    "list image volume directory",
		Fn:      lsCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "cat",
		Args:    1,
		Pattern: regexp.MustCompile(`^cat (\S+)$`),
		Syntax:  "<path>",
		Help:    "show image volume file",
		Fn:      catCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "efi",
		Args:    1,
		Pattern: regexp.MustCompile(`^efi (\S+)$`),
		Syntax:  "<path>",
		Help:    "load and start EFI image from image volume",
		Fn:      efiCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "windows,win,w",
		Pattern: regexp.MustCompile(`^(?:windows|win|w)$`),
		Help:    "launch Windows UEFI boot manager",
		Fn:      winCmd,
	})
}

// volumePath converts an absolute, or volume relative, path in either EFI or
// slash separated format to an [fs.FS] path.
func volumePath(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, `\`, "/")), "/")

	if p == "" {
		return "."
	}

	return p
}

// loadKernel reads a kernel image, or a loader entry and the files it
// references, from the volume the running image was loaded from. The volume
// is released before returning.
func loadKernel(s *uefi.Services, name string) (kernel []byte, initrd []byte, options string, err error) {
	root, err := s.Root()

	if err != nil {
		return
	}

	defer root.Close()

	if !strings.HasSuffix(name, ".conf") {
		kernel, err = fs.ReadFile(root, volumePath(name))
		return
	}

	entry, err := uapi.LoadEntry(root, volumePath(name))

	if err != nil {
		return nil, nil, "", fmt.Errorf("could not load entry, %v", err)
	}

	log.Printf("loaded entry %s", entry.Title)

	return entry.Linux, entry.Initrd, entry.Options, nil
}

func lsCmd(iface *shell.Interface, arg []string) (res string, err error) {
	var buf bytes.Buffer

	s, err := services(iface)

	if err != nil {
		return
	}

	root, err := s.Root()

	if err != nil {
		return
	}

	defer root.Close()

	entries, err := fs.ReadDir(root, volumePath(arg[0]))

	if err != nil {
		return
	}

	for _, e := range entries {
		info, err := e.Info()

		if err != nil {
			return "", err
		}

		fmt.Fprintf(&buf, "%s %10d %s %s\n", info.Mode(), info.Size(), info.ModTime().Format("2006-01-02 15:04"), e.Name())
	}

	return buf.String(), nil
}

func catCmd(iface *shell.Interface, arg []string) (res string, err error) {
	s, err := services(iface)

	if err != nil {
		return
	}

	root, err := s.Root()

	if err != nil {
		return
	}

	defer root.Close()

	name := volumePath(arg[0])
	info, err := fs.Stat(root, name)

	if err != nil {
		return
	}

	if info.Size() > maxCatSize {
		return "", fmt.Errorf("file too large (%d bytes)", info.Size())
	}

	buf, err := fs.ReadFile(root, name)

	return string(buf), err
}

func efiCmd(iface *shell.Interface, arg []string) (res string, err error) {
	s, err := services(iface)

	if err != nil {
		return
	}

	root, err := s.Root()

	if err != nil {
		return
	}

	defer root.Close()

	h, err := s.Boot.LoadImageFile(root, volumePath(arg[0]))

	if err != nil {
		return "", fmt.Errorf("could not load image, %w", err)
	}

	log.Printf("starting image %#x", h)

	if err = s.Boot.StartImage(h); err != nil {
		s.Boot.UnloadImage(h)
		return "", fmt.Errorf("could not start image, %w", err)
	}

	return
}

func winCmd(iface *shell.Interface, _ []string) (res string, err error) {
	return efiCmd(iface, []string{WindowsBootManager})
}
