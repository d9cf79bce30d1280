// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package x64

import (
	"github.com/usbarmory/go-uefi/uefi"
)

// EFI Boot Services offsets
const (
	raiseTPL                   = 0x18
	restoreTPL                 = 0x20
	allocatePages              = 0x28
	freePages                  = 0x30
	getMemoryMap               = 0x38
	allocatePool               = 0x40
	freePool                   = 0x48
	createEvent                = 0x50
	setTimer                   = 0x58
	waitForEvent               = 0x60
	signalEvent                = 0x68
	closeEvent                 = 0x70
	checkEvent                 = 0x78
	installProtocolInterface   = 0x80
	uninstallProtocolInterface = 0x90
	locateHandle               = 0xb0
	loadImage                  = 0xc8
	startImage                 = 0xd0
	exit                       = 0xd8
	unloadImage                = 0xe0
	exitBootServices           = 0xe8
	stall                      = 0xf8
	setWatchdogTimer           = 0x100
	openProtocol               = 0x118
	closeProtocol              = 0x120
	protocolsPerHandle         = 0x130
	locateProtocol             = 0x140
)

// EFI Runtime Services offsets
const (
	getTime                   = 0x18
	setTime                   = 0x20
	getVariable               = 0x48
	getNextVariableName       = 0x50
	setVariable               = 0x58
	getNextHighMonotonicCount = 0x60
	resetSystem               = 0x68
	queryVariableInfo         = 0x80
)

type bootTable struct {
	fw   *firmware
	base uint64
}

func (b *bootTable) call(offset uint64, args ...uint64) uefi.Status {
	return b.fw.Call(b.base+offset, args...)
}

func (b *bootTable) RaiseTPL(tpl uefi.TPL) uefi.TPL {
	return uefi.TPL(b.call(raiseTPL, uint64(tpl)))
}

func (b *bootTable) RestoreTPL(tpl uefi.TPL) {
	b.call(restoreTPL, uint64(tpl))
}

func (b *bootTable) AllocatePages(t uefi.AllocateType, m uefi.MemoryType, pages uint64, addr *uint64) uefi.Status {
	return b.call(allocatePages, uint64(t), uint64(m), pages, ptr(addr))
}

func (b *bootTable) FreePages(addr uint64, pages uint64) uefi.Status {
	return b.call(freePages, addr, pages)
}

func (b *bootTable) GetMemoryMap(size *uint64, buf []byte, key *uint64, descSize *uint64, descVersion *uint32) uefi.Status {
	return b.call(getMemoryMap, ptr(size), slice(buf), ptr(key), ptr(descSize), ptr(descVersion))
}

func (b *bootTable) AllocatePool(m uefi.MemoryType, size uint64, addr *uint64) uefi.Status {
	return b.call(allocatePool, uint64(m), size, ptr(addr))
}

func (b *bootTable) FreePool(addr uint64) uefi.Status {
	return b.call(freePool, addr)
}

// Notification functions are dispatched by the Go runtime, firmware events
// are therefore created without NotifyFunction and NotifyContext.
func (b *bootTable) CreateEvent(t uefi.EventType, tpl uefi.TPL, event *uefi.Event) uefi.Status {
	return b.call(createEvent, uint64(t), uint64(tpl), 0, 0, ptr(event))
}

func (b *bootTable) SetTimer(event uefi.Event, t uefi.TimerDelay, trigger uint64) uefi.Status {
	return b.call(setTimer, uint64(event), uint64(t), trigger)
}

func (b *bootTable) WaitForEvent(events []uefi.Event, index *uint64) uefi.Status {
	return b.call(waitForEvent, uint64(len(events)), slice(events), ptr(index))
}

func (b *bootTable) SignalEvent(event uefi.Event) uefi.Status {
	return b.call(signalEvent, uint64(event))
}

func (b *bootTable) CloseEvent(event uefi.Event) uefi.Status {
	return b.call(closeEvent, uint64(event))
}

func (b *bootTable) CheckEvent(event uefi.Event) uefi.Status {
	return b.call(checkEvent, uint64(event))
}

func (b *bootTable) InstallProtocolInterface(handle *uefi.Handle, guid uefi.GUID, iface uint64) uefi.Status {
	return b.call(installProtocolInterface, ptr(handle), ptr(&guid), 0, iface)
}

func (b *bootTable) UninstallProtocolInterface(handle uefi.Handle, guid uefi.GUID, iface uint64) uefi.Status {
	return b.call(uninstallProtocolInterface, uint64(handle), ptr(&guid), iface)
}

func (b *bootTable) LocateHandle(t uefi.SearchType, guid *uefi.GUID, size *uint64, buf []uefi.Handle) uefi.Status {
	return b.call(locateHandle, uint64(t), ptr(guid), 0, ptr(size), slice(buf))
}

func (b *bootTable) LoadImage(bootPolicy bool, parent uefi.Handle, devicePath uint64, source []byte, image *uefi.Handle) uefi.Status {
	return b.call(loadImage, bool64(bootPolicy), uint64(parent), devicePath, slice(source), uint64(len(source)), ptr(image))
}

func (b *bootTable) StartImage(image uefi.Handle, exitDataSize *uint64, exitData *uint64) uefi.Status {
	return b.call(startImage, uint64(image), ptr(exitDataSize), ptr(exitData))
}

func (b *bootTable) Exit(image uefi.Handle, status uefi.Status, exitDataSize uint64, exitData uint64) uefi.Status {
	return b.call(exit, uint64(image), uint64(status), exitDataSize, exitData)
}

func (b *bootTable) UnloadImage(image uefi.Handle) uefi.Status {
	return b.call(unloadImage, uint64(image))
}

func (b *bootTable) ExitBootServices(image uefi.Handle, key uint64) uefi.Status {
	return b.call(exitBootServices, uint64(image), key)
}

func (b *bootTable) Stall(us uint64) uefi.Status {
	return b.call(stall, us)
}

func (b *bootTable) SetWatchdogTimer(timeout uint64, code uint64, dataSize uint64, data uint64) uefi.Status {
	return b.call(setWatchdogTimer, timeout, code, dataSize, data)
}

func (b *bootTable) OpenProtocol(handle uefi.Handle, guid uefi.GUID, iface *uint64, agent uefi.Handle, controller uefi.Handle, attr uefi.OpenAttribute) uefi.Status {
	return b.call(openProtocol, uint64(handle), ptr(&guid), ptr(iface), uint64(agent), uint64(controller), uint64(attr))
}

func (b *bootTable) CloseProtocol(handle uefi.Handle, guid uefi.GUID, agent uefi.Handle, controller uefi.Handle) uefi.Status {
	return b.call(closeProtocol, uint64(handle), ptr(&guid), uint64(agent), uint64(controller))
}

func (b *bootTable) ProtocolsPerHandle(handle uefi.Handle, buf *uint64, count *uint64) uefi.Status {
	return b.call(protocolsPerHandle, uint64(handle), ptr(buf), ptr(count))
}

func (b *bootTable) LocateProtocol(guid uefi.GUID, registration uint64, iface *uint64) uefi.Status {
	return b.call(locateProtocol, ptr(&guid), registration, ptr(iface))
}

type runtimeTable struct {
	fw   *firmware
	base uint64
}

func (r *runtimeTable) call(offset uint64, args ...uint64) uefi.Status {
	return r.fw.Call(r.base+offset, args...)
}

func (r *runtimeTable) GetTime(t *uefi.Time, c *uefi.TimeCapabilities) uefi.Status {
	return r.call(getTime, ptr(t), ptr(c))
}

func (r *runtimeTable) SetTime(t *uefi.Time) uefi.Status {
	return r.call(setTime, ptr(t))
}

func (r *runtimeTable) GetVariable(name []uint16, vendor uefi.GUID, attr *uint32, size *uint64, data []byte) uefi.Status {
	return r.call(getVariable, slice(name), ptr(&vendor), ptr(attr), ptr(size), slice(data))
}

func (r *runtimeTable) GetNextVariableName(size *uint64, name []uint16, vendor *uefi.GUID) uefi.Status {
	return r.call(getNextVariableName, ptr(size), slice(name), ptr(vendor))
}

func (r *runtimeTable) SetVariable(name []uint16, vendor uefi.GUID, attr uint32, data []byte) uefi.Status {
	return r.call(setVariable, slice(name), ptr(&vendor), uint64(attr), uint64(len(data)), slice(data))
}

func (r *runtimeTable) QueryVariableInfo(attr uint32, maxStorage *uint64, remaining *uint64, maxSize *uint64) uefi.Status {
	return r.call(queryVariableInfo, uint64(attr), ptr(maxStorage), ptr(remaining), ptr(maxSize))
}

func (r *runtimeTable) GetNextHighMonotonicCount(count *uint32) uefi.Status {
	return r.call(getNextHighMonotonicCount, ptr(count))
}

func (r *runtimeTable) ResetSystem(t uefi.ResetType, status uefi.Status, data []byte) uefi.Status {
	return r.call(resetSystem, uint64(t), uint64(status), uint64(len(data)), slice(data))
}
