// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefitest

import (
	"github.com/usbarmory/go-uefi/uefi"
)

type event struct {
	t        uefi.EventType
	signaled bool

	// timer state, in 100ns units
	armed    bool
	deadline uint64
	period   uint64
}

type bootServices struct {
	f *Firmware
}

// advance moves the virtual clock forward, signaling expired timers.
func (f *Firmware) advance(ticks uint64) {
	f.clock += ticks

	for _, e := range f.events {
		for e.armed && e.deadline <= f.clock {
			e.signaled = true

			if e.period == 0 {
				e.armed = false
				break
			}

			e.deadline += e.period
		}
	}
}

// next returns the earliest deadline among armed timers of the argument
// events.
func (f *Firmware) next(events []uefi.Event) (deadline uint64, ok bool) {
	for _, ev := range events {
		e := f.events[ev]

		if !e.armed {
			continue
		}

		if !ok || e.deadline < deadline {
			deadline = e.deadline
			ok = true
		}
	}

	return
}

func (b *bootServices) RaiseTPL(tpl uefi.TPL) (old uefi.TPL) {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return
	}

	old = f.tpl
	f.tpl = tpl

	return
}

func (b *bootServices) RestoreTPL(tpl uefi.TPL) {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return
	}

	f.tpl = tpl
}

func (b *bootServices) CreateEvent(t uefi.EventType, tpl uefi.TPL, ev *uefi.Event) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	// notification functions cannot be emulated
	if ev == nil || t&^uefi.EVT_TIMER != 0 {
		return uefi.EFI_INVALID_PARAMETER
	}

	*ev = uefi.Event(f.alloc(8))
	f.events[*ev] = &event{t: t}

	return uefi.EFI_SUCCESS
}

func (b *bootServices) SetTimer(ev uefi.Event, t uefi.TimerDelay, trigger uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	e, ok := f.events[ev]

	if !ok || e.t&uefi.EVT_TIMER == 0 {
		return uefi.EFI_INVALID_PARAMETER
	}

	switch t {
	case uefi.TimerCancel:
		e.armed = false
		return uefi.EFI_SUCCESS
	case uefi.TimerPeriodic:
		e.period = max(trigger, 1)
	case uefi.TimerRelative:
		e.period = 0
	default:
		return uefi.EFI_INVALID_PARAMETER
	}

	e.armed = true
	e.deadline = f.clock + trigger

	// a zero trigger fires on the next tick
	if trigger == 0 {
		f.advance(0)
	}

	return uefi.EFI_SUCCESS
}

func (b *bootServices) WaitForEvent(events []uefi.Event, index *uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if len(events) == 0 || index == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	if f.tpl != uefi.TPL_APPLICATION {
		return uefi.EFI_UNSUPPORTED
	}

	for i, ev := range events {
		if _, ok := f.events[ev]; !ok {
			*index = uint64(i)
			return uefi.EFI_INVALID_PARAMETER
		}
	}

	for {
		for i, ev := range events {
			if e := f.events[ev]; e.signaled {
				e.signaled = false
				*index = uint64(i)
				return uefi.EFI_SUCCESS
			}
		}

		deadline, ok := f.next(events)

		if !ok {
			return uefi.EFI_NOT_READY
		}

		f.advance(deadline - f.clock)
	}
}

func (b *bootServices) SignalEvent(ev uefi.Event) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	e, ok := f.events[ev]

	if !ok {
		return uefi.EFI_INVALID_PARAMETER
	}

	e.signaled = true

	return uefi.EFI_SUCCESS
}

func (b *bootServices) CloseEvent(ev uefi.Event) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if _, ok := f.events[ev]; !ok {
		return uefi.EFI_INVALID_PARAMETER
	}

	delete(f.events, ev)

	return uefi.EFI_SUCCESS
}

func (b *bootServices) CheckEvent(ev uefi.Event) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	e, ok := f.events[ev]

	if !ok {
		return uefi.EFI_INVALID_PARAMETER
	}

	if !e.signaled {
		return uefi.EFI_NOT_READY
	}

	e.signaled = false

	return uefi.EFI_SUCCESS
}

func (b *bootServices) Stall(us uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	f.advance(us * 10)

	return uefi.EFI_SUCCESS
}

func (b *bootServices) SetWatchdogTimer(timeout uint64, code uint64, dataSize uint64, data uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if code <= 0xffff {
		return uefi.EFI_INVALID_PARAMETER
	}

	f.watchdog = timeout

	return uefi.EFI_SUCCESS
}

func (b *bootServices) ExitBootServices(image uefi.Handle, key uint64) uefi.Status {
	f := b.f
	f.Lock()
	defer f.Unlock()

	if f.bootCall() != nil {
		return uefi.EFI_UNSUPPORTED
	}

	if f.StaleKeys > 0 {
		f.StaleKeys--
		f.mapKey++
	}

	if image != f.ImageHandle || key != f.mapKey {
		return uefi.EFI_INVALID_PARAMETER
	}

	f.exited = true

	return uefi.EFI_SUCCESS
}
