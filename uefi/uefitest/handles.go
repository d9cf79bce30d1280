// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefitest

import (
	"encoding/binary"
	"slices"

	"github.com/usbarmory/go-uefi/uefi"
)

type openRecord struct {
	agent      uefi.Handle
	controller uefi.Handle
	attr       uefi.OpenAttribute
}

type protocol struct {
	guid     uefi.GUID
	guidAddr uint64
	iface    uint64
	opens    []*openRecord
}

type handle struct {
	handle    uefi.Handle
	protocols []*protocol
}

func (h *handle) lookup(guid uefi.GUID) *protocol {
	for _, p := range h.protocols {
		if p.guid == guid {
			return p
		}
	}

	return nil
}

func (f *Firmware) lookup(h uefi.Handle) *handle {
	for _, e := range f.handles {
		if e.handle == h {
			return e
		}
	}

	return nil
}

// install adds a protocol interface, creating a new handle when h is zero.
func (f *Firmware) install(h uefi.Handle, guid uefi.GUID, iface uint64) uefi.Handle {
	e := f.lookup(h)

	if e == nil {
		e = &handle{handle: uefi.Handle(f.alloc(8))}
		f.handles = append(f.handles, e)
	}

	addr := f.alloc(len(guid))
	copy(f.mem[addr:], guid[:])

	e.protocols = append(e.protocols, &protocol{
		guid:     guid,
		guidAddr: addr,
		iface:    iface,
	})

	return e.handle
}

// InstallProtocol installs a protocol interface on handle h, or on a new
// handle when h is zero, and returns the handle.
func (f *Firmware) InstallProtocol(h uefi.Handle, guid uefi.GUID, iface uint64) uefi.Handle {
	f.Lock()
	defer f.Unlock()

	return f.install(h, guid, iface)
}

// OpenCount returns the number of open records for a protocol on a handle.
func (f *Firmware) OpenCount(h uefi.Handle, guid uefi.GUID) int {
	f.Lock()
	defer f.Unlock()

	if e := f.lookup(h); e != nil {
		if p := e.lookup(guid); p != nil {
			return len(p.opens)
		}
	}

	return 0
}

func (b *bootServices) InstallProtocolInterface(h *uefi.Handle, guid uefi.GUID, iface uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if h == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	if *h != 0 {
		e := f.lookup(*h)

		if e == nil || e.lookup(guid) != nil {
			return uefi.EFI_INVALID_PARAMETER
		}
	}

	*h = f.install(*h, guid, iface)

	return uefi.EFI_SUCCESS
}

func (b *bootServices) UninstallProtocolInterface(h uefi.Handle, guid uefi.GUID, iface uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	e := f.lookup(h)

	if e == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	p := e.lookup(guid)

	if p == nil || p.iface != iface {
		return uefi.EFI_NOT_FOUND
	}

	for _, r := range p.opens {
		if r.attr&(uefi.OpenByDriver|uefi.OpenExclusive) != 0 {
			return uefi.EFI_ACCESS_DENIED
		}
	}

	e.protocols = slices.DeleteFunc(e.protocols, func(q *protocol) bool { return q == p })

	if len(e.protocols) == 0 {
		f.handles = slices.DeleteFunc(f.handles, func(q *handle) bool { return q == e })
	}

	return uefi.EFI_SUCCESS
}

func (b *bootServices) LocateHandle(t uefi.SearchType, guid *uefi.GUID, size *uint64, buf []uefi.Handle) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if size == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	var handles []uefi.Handle

	switch t {
	case uefi.SearchAllHandles:
		for _, e := range f.handles {
			handles = append(handles, e.handle)
		}
	case uefi.SearchByProtocol:
		if guid == nil {
			return uefi.EFI_INVALID_PARAMETER
		}

		for _, e := range f.handles {
			if e.lookup(*guid) != nil {
				handles = append(handles, e.handle)
			}
		}
	default:
		return uefi.EFI_INVALID_PARAMETER
	}

	if len(handles) == 0 {
		return uefi.EFI_NOT_FOUND
	}

	need := uint64(len(handles) * 8)

	if *size < need || len(buf) < len(handles) {
		*size = need
		return uefi.EFI_BUFFER_TOO_SMALL
	}

	copy(buf, handles)
	*size = need

	return uefi.EFI_SUCCESS
}

func (b *bootServices) OpenProtocol(h uefi.Handle, guid uefi.GUID, iface *uint64, agent uefi.Handle, controller uefi.Handle, attr uefi.OpenAttribute) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	e := f.lookup(h)

	if e == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	if attr != uefi.OpenTestProtocol && iface == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	switch attr {
	case uefi.OpenByHandleProtocol, uefi.OpenGetProtocol, uefi.OpenTestProtocol:
	case uefi.OpenByChildController, uefi.OpenByDriver, uefi.OpenExclusive, uefi.OpenByDriver | uefi.OpenExclusive:
		if f.lookup(agent) == nil || f.lookup(controller) == nil {
			return uefi.EFI_INVALID_PARAMETER
		}
	default:
		return uefi.EFI_INVALID_PARAMETER
	}

	p := e.lookup(guid)

	if p == nil {
		return uefi.EFI_UNSUPPORTED
	}

	if attr == uefi.OpenTestProtocol {
		return uefi.EFI_SUCCESS
	}

	if attr&(uefi.OpenByDriver|uefi.OpenExclusive) != 0 {
		for _, r := range p.opens {
			switch {
			case r.attr&uefi.OpenExclusive != 0 && r.agent == agent && attr&uefi.OpenByDriver != 0:
				*iface = p.iface
				return uefi.EFI_ALREADY_STARTED
			case r.attr&uefi.OpenExclusive != 0:
				return uefi.EFI_ACCESS_DENIED
			case r.attr&uefi.OpenByDriver != 0 && r.agent == agent && attr == uefi.OpenByDriver:
				*iface = p.iface
				return uefi.EFI_ALREADY_STARTED
			case r.attr&uefi.OpenByDriver != 0:
				return uefi.EFI_ACCESS_DENIED
			}
		}
	}

	p.opens = append(p.opens, &openRecord{
		agent:      agent,
		controller: controller,
		attr:       attr,
	})

	*iface = p.iface

	return uefi.EFI_SUCCESS
}

func (b *bootServices) CloseProtocol(h uefi.Handle, guid uefi.GUID, agent uefi.Handle, controller uefi.Handle) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	e := f.lookup(h)

	if e == nil || f.lookup(agent) == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	p := e.lookup(guid)

	if p == nil {
		return uefi.EFI_NOT_FOUND
	}

	n := len(p.opens)

	p.opens = slices.DeleteFunc(p.opens, func(r *openRecord) bool {
		return r.agent == agent && r.controller == controller
	})

	if len(p.opens) == n {
		return uefi.EFI_NOT_FOUND
	}

	return uefi.EFI_SUCCESS
}

func (b *bootServices) ProtocolsPerHandle(h uefi.Handle, buf *uint64, count *uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	e := f.lookup(h)

	if e == nil || buf == nil || count == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	addr, status := f.poolAlloc(uint64(len(e.protocols) * 8))

	if status != uefi.EFI_SUCCESS {
		return status
	}

	for i, p := range e.protocols {
		binary.LittleEndian.PutUint64(f.mem[addr+uint64(i*8):], p.guidAddr)
	}

	*buf = addr
	*count = uint64(len(e.protocols))

	return uefi.EFI_SUCCESS
}

func (b *bootServices) LocateProtocol(guid uefi.GUID, registration uint64, iface *uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if iface == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	for _, e := range f.handles {
		if p := e.lookup(guid); p != nil {
			*iface = p.iface
			return uefi.EFI_SUCCESS
		}
	}

	return uefi.EFI_NOT_FOUND
}
