// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"errors"
	"testing"
	"time"

	"github.com/usbarmory/go-uefi/uefi"
)

func TestTimer(t *testing.T) {
	fw, s := open(t)

	e, err := s.Boot.CreateEvent(uefi.EVT_TIMER, uefi.TPL_CALLBACK, nil)

	if err != nil {
		t.Fatal(err)
	}

	defer s.Boot.CloseEvent(e)

	if err = s.Boot.SetTimer(e, uefi.TimerRelative, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	if signaled, err := s.Boot.CheckEvent(e); err != nil || signaled {
		t.Fatalf("unexpected result %v, %v", signaled, err)
	}

	i, err := s.Boot.WaitForEvent(e)

	if err != nil {
		t.Fatal(err)
	}

	if i != 0 {
		t.Fatalf("unexpected index %d", i)
	}

	if fw.Elapsed() != 10*time.Millisecond {
		t.Fatalf("unexpected elapsed time %v", fw.Elapsed())
	}

	// expired relative timers never signal again
	if _, err = s.Boot.WaitForEvent(e); !errors.Is(err, uefi.ErrFirmware) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestPeriodicTimer(t *testing.T) {
	var ticks int

	fw, s := open(t)

	e, err := s.Boot.CreateEvent(uefi.EVT_TIMER|uefi.EVT_NOTIFY_SIGNAL, uefi.TPL_CALLBACK, func(uefi.Event) {
		ticks++
	})

	if err != nil {
		t.Fatal(err)
	}

	if err = s.Boot.SetTimer(e, uefi.TimerPeriodic, time.Millisecond); err != nil {
		t.Fatal(err)
	}

	if err = s.Boot.Stall(3500 * time.Microsecond); err != nil {
		t.Fatal(err)
	}

	n, err := s.Boot.Poll()

	if err != nil {
		t.Fatal(err)
	}

	// the signaled state is not a counter
	if n != 1 || ticks != 1 {
		t.Fatalf("unexpected notifications %d (%d)", n, ticks)
	}

	if fw.Elapsed() != 3500*time.Microsecond {
		t.Fatalf("unexpected elapsed time %v", fw.Elapsed())
	}

	// notify signal events cannot be waited on
	if _, err = s.Boot.WaitForEvent(e); err == nil {
		t.Fatal("wait on notify signal event should fail")
	}

	if err = s.Boot.SetTimer(e, uefi.TimerCancel, 0); err != nil {
		t.Fatal(err)
	}

	if err = s.Boot.CloseEvent(e); err != nil {
		t.Fatal(err)
	}

	if err = s.Boot.SignalEvent(e); err == nil {
		t.Fatal("closed event should not be signaled")
	}
}

func TestSignalEvent(t *testing.T) {
	var notified []uefi.Event

	_, s := open(t)

	e, err := s.Boot.CreateEvent(uefi.EVT_NOTIFY_SIGNAL, uefi.TPL_CALLBACK, func(e uefi.Event) {
		notified = append(notified, e)
	})

	if err != nil {
		t.Fatal(err)
	}

	if err = s.Boot.SignalEvent(e); err != nil {
		t.Fatal(err)
	}

	if len(notified) != 1 || notified[0] != e {
		t.Fatalf("unexpected notifications %v", notified)
	}

	if n, _ := s.Boot.Poll(); n != 0 {
		t.Fatal("notification should be delivered once")
	}
}

func TestNotifyWait(t *testing.T) {
	var waits int

	_, s := open(t)

	e, err := s.Boot.CreateEvent(uefi.EVT_TIMER|uefi.EVT_NOTIFY_WAIT, uefi.TPL_CALLBACK, func(uefi.Event) {
		waits++
	})

	if err != nil {
		t.Fatal(err)
	}

	if err = s.Boot.SetTimer(e, uefi.TimerRelative, 0); err != nil {
		t.Fatal(err)
	}

	signaled, err := s.Boot.CheckEvent(e)

	if err != nil || !signaled {
		t.Fatalf("unexpected result %v, %v", signaled, err)
	}

	if waits != 1 {
		t.Fatalf("unexpected notifications %d", waits)
	}
}

func TestCreateEventInvalid(t *testing.T) {
	_, s := open(t)

	if _, err := s.Boot.CreateEvent(uefi.EVT_NOTIFY_SIGNAL, uefi.TPL_CALLBACK, nil); err == nil {
		t.Fatal("missing notification function should fail")
	}

	if _, err := s.Boot.CreateEvent(uefi.EVT_RUNTIME|uefi.EVT_TIMER, uefi.TPL_CALLBACK, nil); err == nil {
		t.Fatal("runtime events should fail")
	}

	if _, err := s.Boot.WaitForEvent(); !errors.Is(err, uefi.ErrFirmware) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRaiseTPL(t *testing.T) {
	fw, s := open(t)

	restore, err := s.Boot.RaiseTPL(uefi.TPL_NOTIFY)

	if err != nil {
		t.Fatal(err)
	}

	if fw.TPL() != uefi.TPL_NOTIFY {
		t.Fatalf("unexpected TPL %d", fw.TPL())
	}

	restore()

	if fw.TPL() != uefi.TPL_APPLICATION {
		t.Fatalf("unexpected TPL %d", fw.TPL())
	}
}

func TestWatchdog(t *testing.T) {
	fw, s := open(t)

	if err := s.Boot.SetWatchdogTimer(300); err != nil {
		t.Fatal(err)
	}

	if fw.Watchdog() != 300 {
		t.Fatalf("unexpected watchdog timeout %d", fw.Watchdog())
	}
}

func TestCreateTimer(t *testing.T) {
	fw, s := open(t)

	e, err := s.Boot.CreateTimer(uefi.TimerRelative, 0)

	if err != nil {
		t.Fatal(err)
	}

	defer s.Boot.CloseEvent(e)

	if _, err = s.Boot.WaitForEvent(e); err != nil {
		t.Fatal(err)
	}

	if fw.Elapsed() != 0 {
		t.Fatalf("unexpected elapsed time %v", fw.Elapsed())
	}

	if _, err = s.Boot.CreateTimer(uefi.TimerDelay(3), time.Second); err == nil {
		t.Fatal("invalid delay type should fail")
	}
}
