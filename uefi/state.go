// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"fmt"
	"sync"
)

// bootState is shared by all Boot Services consumers of a single [Services]
// instance, its table is cleared once Boot Services are exited.
type bootState struct {
	sync.Mutex

	table BootTable
	image Handle

	// outstanding opened protocols in opening order
	opened []*OpenedProtocol
	// events with Go notification functions in creation order
	events []*eventEntry
}

func newBootState(table BootTable, image Handle) *bootState {
	return &bootState{
		table: table,
		image: image,
	}
}

// boot returns the Boot Services table, if still available.
func (b *bootState) boot(op string) (BootTable, error) {
	if b == nil {
		return nil, fmt.Errorf("%s, %w", op, ErrServicesUnavailable)
	}

	b.Lock()
	defer b.Unlock()

	if b.table == nil {
		return nil, fmt.Errorf("%s, %w", op, ErrServicesUnavailable)
	}

	return b.table, nil
}

func (b *bootState) available() bool {
	_, err := b.boot("")
	return err == nil
}

// revoke clears the Boot Services table and returns the protocols still
// opened at the time.
func (b *bootState) revoke() (opened []*OpenedProtocol) {
	b.Lock()
	defer b.Unlock()

	opened = b.opened

	b.table = nil
	b.opened = nil
	b.events = nil

	return
}

func (b *bootState) track(p *OpenedProtocol) {
	b.Lock()
	defer b.Unlock()

	b.opened = append(b.opened, p)
}

func (b *bootState) untrack(p *OpenedProtocol) {
	b.Lock()
	defer b.Unlock()

	for i, o := range b.opened {
		if o == p {
			b.opened = append(b.opened[:i], b.opened[i+1:]...)
			return
		}
	}
}

// outstanding returns a copy of the currently opened protocols.
func (b *bootState) outstanding() (opened []*OpenedProtocol) {
	b.Lock()
	defer b.Unlock()

	return append(opened, b.opened...)
}

// exclusive returns whether an exclusive open is outstanding on the
// argument handle and protocol.
func (b *bootState) exclusive(handle Handle, guid GUID) bool {
	b.Lock()
	defer b.Unlock()

	for _, o := range b.opened {
		if o.handle == handle && o.guid == guid && o.attr&OpenExclusive != 0 {
			return true
		}
	}

	return false
}

func (b *bootState) addEvent(e *eventEntry) {
	b.Lock()
	defer b.Unlock()

	b.events = append(b.events, e)
}

func (b *bootState) removeEvent(event Event) {
	b.Lock()
	defer b.Unlock()

	for i, e := range b.events {
		if e.event == event {
			b.events = append(b.events[:i], b.events[i+1:]...)
			return
		}
	}
}

func (b *bootState) lookupEvent(event Event) *eventEntry {
	b.Lock()
	defer b.Unlock()

	for _, e := range b.events {
		if e.event == event {
			return e
		}
	}

	return nil
}

// signalEvents returns events with a notification function to be invoked
// once signaled.
func (b *bootState) signalEvents() (events []*eventEntry) {
	b.Lock()
	defer b.Unlock()

	for _, e := range b.events {
		if e.kind&EVT_NOTIFY_SIGNAL != 0 && e.kind != EVT_SIGNAL_EXIT_BOOT_SERVICES {
			events = append(events, e)
		}
	}

	return
}

// takeExitEvents removes and returns events to be notified on Boot Services
// exit.
func (b *bootState) takeExitEvents() (events []*eventEntry) {
	b.Lock()
	defer b.Unlock()

	var keep []*eventEntry

	for _, e := range b.events {
		if e.kind == EVT_SIGNAL_EXIT_BOOT_SERVICES {
			events = append(events, e)
		} else {
			keep = append(keep, e)
		}
	}

	b.events = keep

	return
}
