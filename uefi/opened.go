// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"
)

// OpenedProtocol represents a protocol interface opened through
// [Directory.Open], valid until released with [OpenedProtocol.Close].
type OpenedProtocol struct {
	sync.Mutex

	handle     Handle
	guid       GUID
	attr       OpenAttribute
	controller Handle
	addr       uint64
	closed     bool

	dir *Directory
}

// Handle returns the handle the protocol is opened on.
func (p *OpenedProtocol) Handle() Handle {
	return p.handle
}

// GUID returns the protocol identifier.
func (p *OpenedProtocol) GUID() GUID {
	return p.guid
}

// Attributes returns the open attributes.
func (p *OpenedProtocol) Attributes() OpenAttribute {
	return p.attr
}

// Address returns the protocol interface address, zero once released.
func (p *OpenedProtocol) Address() uint64 {
	p.Lock()
	defer p.Unlock()

	if p.closed {
		return 0
	}

	return p.addr
}

// Closed returns whether the protocol has been released.
func (p *OpenedProtocol) Closed() bool {
	p.Lock()
	defer p.Unlock()

	return p.closed
}

// Close calls EFI_BOOT_SERVICES.CloseProtocol(), exactly once regardless of
// the number of invocations. Failures are logged and otherwise ignored as
// there is no recovery from them.
func (p *OpenedProtocol) Close() {
	p.Lock()
	defer p.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	p.dir.state.untrack(p)

	b, err := p.dir.state.boot("EFI_BOOT_SERVICES.CloseProtocol")

	if err != nil {
		return
	}

	status := b.CloseProtocol(p.handle, p.guid, p.dir.state.image, p.controller)

	if err = parseStatus("EFI_BOOT_SERVICES.CloseProtocol", status); err != nil {
		log.Printf("uefi: could not close %s on handle %#x, %v", Name(p.guid), p.handle, err)
	}
}

// invalidate marks the protocol as released once Boot Services are exited,
// when no firmware release call is possible anymore.
func (p *OpenedProtocol) invalidate() {
	p.Lock()
	defer p.Unlock()

	p.closed = true
}

// Decode reads the protocol interface into a fixed-size data structure.
func (p *OpenedProtocol) Decode(data any) (err error) {
	addr, err := p.address()

	if err != nil {
		return
	}

	return decode(p.dir.fw, data, addr)
}

// Call invokes the protocol member function stored at the argument offset
// within the protocol interface.
func (p *OpenedProtocol) Call(offset uint64, args ...uint64) (status Status, err error) {
	addr, err := p.address()

	if err != nil {
		return
	}

	return p.dir.fw.Call(addr+offset, args...), nil
}

func (p *OpenedProtocol) address() (uint64, error) {
	if err := p.usable(); err != nil {
		return 0, err
	}

	return p.addr, nil
}

func (p *OpenedProtocol) usable() error {
	if p.Closed() {
		return fmt.Errorf("%s, %w", Name(p.guid), ErrClosed)
	}

	if _, err := p.dir.state.boot(Name(p.guid)); err != nil {
		return err
	}

	return nil
}

// Opened represents a protocol interface reinterpreted as its layout T.
type Opened[T any] struct {
	*OpenedProtocol

	// Interface is a snapshot of the protocol interface
	Interface *T
}

// Refresh updates the protocol interface snapshot.
func (o *Opened[T]) Refresh() error {
	return o.Decode(o.Interface)
}

// OpenProtocol opens, through the argument directory, the protocol identified
// by layout T on the argument handle.
func OpenProtocol[T any, P interface {
	*T
	Protocol
}](d *Directory, h Handle, attr OpenAttribute) (o *Opened[T], err error) {
	var t T

	if binary.Size(&t) <= 0 {
		return nil, fmt.Errorf("%w (%T)", errInvalidLayout, t)
	}

	p, err := d.Open(h, P(&t).GUID(), attr)

	if err != nil {
		return
	}

	if err = p.Decode(&t); err != nil {
		p.Close()
		return nil, err
	}

	return &Opened[T]{
		OpenedProtocol: p,
		Interface:      &t,
	}, nil
}

// OpenSingle opens the protocol identified by layout T on the only handle
// supporting it.
func OpenSingle[T any, P interface {
	*T
	Protocol
}](d *Directory, attr OpenAttribute) (o *Opened[T], err error) {
	var t T

	h, err := d.LocateHandle(P(&t).GUID())

	if err != nil {
		return
	}

	return OpenProtocol[T, P](d, h, attr)
}

// WithProtocol opens the protocol identified by layout T on the argument
// handle and passes it to fn, the protocol is released when fn returns or
// panics.
func WithProtocol[T any, P interface {
	*T
	Protocol
}](d *Directory, h Handle, attr OpenAttribute, fn func(*Opened[T]) error) (err error) {
	o, err := OpenProtocol[T, P](d, h, attr)

	if err != nil {
		return
	}

	defer o.Close()

	return fn(o)
}
