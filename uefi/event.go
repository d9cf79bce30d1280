// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"fmt"
	"time"
)

// Event represents an EFI_EVENT.
type Event uint64

// EventType represents an EFI event type.
type EventType uint32

// EFI event types
const (
	EVT_TIMER                     EventType = 0x80000000
	EVT_RUNTIME                   EventType = 0x40000000
	EVT_NOTIFY_WAIT               EventType = 0x00000100
	EVT_NOTIFY_SIGNAL             EventType = 0x00000200
	EVT_SIGNAL_EXIT_BOOT_SERVICES EventType = 0x00000201
)

// TimerDelay represents an EFI_TIMER_DELAY.
type TimerDelay uint32

// EFI_TIMER_DELAY
const (
	TimerCancel TimerDelay = iota
	TimerPeriodic
	TimerRelative
)

type eventEntry struct {
	event  Event
	kind   EventType
	notify func(Event)
}

// CreateEvent calls EFI_BOOT_SERVICES.CreateEvent().
//
// Notification functions are never handed to firmware, they are invoked on
// the calling goroutine by [BootServices.WaitForEvent],
// [BootServices.CheckEvent], [BootServices.SignalEvent] and
// [BootServices.Poll] for EVT_NOTIFY_WAIT and EVT_NOTIFY_SIGNAL events, or
// by [Services.ExitBootServices] for EVT_SIGNAL_EXIT_BOOT_SERVICES ones.
//
// EVT_SIGNAL_EXIT_BOOT_SERVICES notifications run once, before the firmware
// exit call, with Boot Services still available. As in firmware they must
// not use memory allocation services, as doing so changes the memory map key
// and fails the exit.
//
// Notification functions must return promptly and must not exit Boot
// Services.
func (s *BootServices) CreateEvent(t EventType, tpl TPL, notify func(Event)) (e Event, err error) {
	const op = "EFI_BOOT_SERVICES.CreateEvent"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	if t&EVT_RUNTIME != 0 {
		return 0, fmt.Errorf("%s, runtime events are not supported", op)
	}

	if t&(EVT_NOTIFY_WAIT|EVT_NOTIFY_SIGNAL) != 0 && notify == nil {
		return 0, errors.New("missing notification function")
	}

	if err = parseStatus(op, b.CreateEvent(t&EVT_TIMER, tpl, &e)); err != nil {
		return
	}

	if notify != nil {
		s.state.addEvent(&eventEntry{
			event:  e,
			kind:   t,
			notify: notify,
		})
	}

	return
}

// SetTimer calls EFI_BOOT_SERVICES.SetTimer(), the trigger time is rounded
// down to 100ns units.
func (s *BootServices) SetTimer(e Event, t TimerDelay, d time.Duration) (err error) {
	const op = "EFI_BOOT_SERVICES.SetTimer"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	if d < 0 {
		d = 0
	}

	return parseStatus(op, b.SetTimer(e, t, uint64(d/100)))
}

// CreateTimer creates a timer event at TPL_APPLICATION armed with the
// argument delay type and trigger time.
func (s *BootServices) CreateTimer(t TimerDelay, d time.Duration) (e Event, err error) {
	if e, err = s.CreateEvent(EVT_TIMER, TPL_APPLICATION, nil); err != nil {
		return
	}

	if err = s.SetTimer(e, t, d); err != nil {
		s.CloseEvent(e)
		return 0, err
	}

	return
}

// WaitForEvent calls EFI_BOOT_SERVICES.WaitForEvent() and returns the index
// of the signaled event.
func (s *BootServices) WaitForEvent(events ...Event) (index int, err error) {
	const op = "EFI_BOOT_SERVICES.WaitForEvent"

	var i uint64

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	if len(events) == 0 {
		return 0, statusError(op, EFI_INVALID_PARAMETER, nil)
	}

	for _, e := range events {
		if err = s.notifyWait(op, e); err != nil {
			return
		}
	}

	if err = parseStatus(op, b.WaitForEvent(events, &i)); err != nil {
		return
	}

	_, err = s.Poll()

	return int(i), err
}

// CheckEvent calls EFI_BOOT_SERVICES.CheckEvent() and returns whether the
// event is signaled, its signaled state is cleared.
func (s *BootServices) CheckEvent(e Event) (signaled bool, err error) {
	const op = "EFI_BOOT_SERVICES.CheckEvent"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	if err = s.notifyWait(op, e); err != nil {
		return
	}

	switch status := b.CheckEvent(e); status {
	case EFI_SUCCESS:
		return true, nil
	case EFI_NOT_READY:
		return false, nil
	default:
		return false, parseStatus(op, status)
	}
}

// SignalEvent calls EFI_BOOT_SERVICES.SignalEvent() and dispatches pending
// notifications.
func (s *BootServices) SignalEvent(e Event) (err error) {
	const op = "EFI_BOOT_SERVICES.SignalEvent"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	if err = parseStatus(op, b.SignalEvent(e)); err != nil {
		return
	}

	_, err = s.Poll()

	return
}

// CloseEvent calls EFI_BOOT_SERVICES.CloseEvent().
func (s *BootServices) CloseEvent(e Event) (err error) {
	const op = "EFI_BOOT_SERVICES.CloseEvent"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	s.state.removeEvent(e)

	return parseStatus(op, b.CloseEvent(e))
}

// Poll invokes the notification function of every signaled EVT_NOTIFY_SIGNAL
// event and returns the number of notifications.
func (s *BootServices) Poll() (n int, err error) {
	b, err := s.state.boot("EFI_BOOT_SERVICES.CheckEvent")

	if err != nil {
		return
	}

	for _, e := range s.state.signalEvents() {
		if b.CheckEvent(e.event) == EFI_SUCCESS {
			e.notify(e.event)
			n++
		}
	}

	return
}

func (s *BootServices) notifyWait(op string, e Event) error {
	entry := s.state.lookupEvent(e)

	if entry == nil {
		return nil
	}

	if entry.kind&EVT_NOTIFY_SIGNAL != 0 {
		return statusError(op, EFI_INVALID_PARAMETER, nil)
	}

	if entry.kind&EVT_NOTIFY_WAIT != 0 {
		entry.notify(e)
	}

	return nil
}
