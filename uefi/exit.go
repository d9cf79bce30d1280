// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
)

// maxHandoffAttempts bounds the memory map retrieval and Boot Services exit
// sequence performed by [Services.Handoff].
const maxHandoffAttempts = 8

// ExitBootServices calls EFI_BOOT_SERVICES.ExitBootServices() with the
// argument memory map key.
//
// Notification functions of events created with EVT_SIGNAL_EXIT_BOOT_SERVICES
// are invoked, once, right before the call while Boot Services are still
// available. A stale key returns [ErrMemoryMapChanged] and leaves Boot
// Services and opened protocols untouched, the caller is then expected to
// retrieve the memory map again and retry with no other Boot Services call in
// between (see [Services.Handoff]).
//
// On success all Boot Services consumers of this instance, including the
// [Directory], [Allocator] and [Console], are revoked and fail with
// [ErrServicesUnavailable], opened protocols are marked as released without
// any further firmware call and the Runtime Services instance is returned.
func (s *Services) ExitBootServices(key MapKey) (rt *Runtime, err error) {
	const op = "EFI_BOOT_SERVICES.ExitBootServices"

	b, err := s.state.boot(op)

	if err != nil {
		return
	}

	for _, e := range s.state.takeExitEvents() {
		e.notify(e.event)
	}

	status := b.ExitBootServices(s.imageHandle, uint64(key))

	if status == EFI_INVALID_PARAMETER {
		return nil, statusError(op, status, ErrMemoryMapChanged)
	}

	if err = parseStatus(op, status); err != nil {
		return
	}

	for _, p := range s.state.revoke() {
		p.invalidate()
	}

	return s.runtime(), nil
}

// Handoff releases all outstanding opened protocols, then retrieves the
// memory map and exits Boot Services, retrying when the memory map changes in
// between. The final memory map is returned for operating system handoff.
func (s *Services) Handoff() (rt *Runtime, m *MemoryMap, err error) {
	for _, p := range s.state.outstanding() {
		p.Close()
	}

	for i := 0; i < maxHandoffAttempts; i++ {
		if m, err = s.Boot.GetMemoryMap(); err != nil {
			return nil, nil, err
		}

		if rt, err = s.ExitBootServices(m.MapKey); err == nil {
			return
		}

		if !errors.Is(err, ErrMemoryMapChanged) {
			return nil, nil, err
		}
	}

	return nil, nil, err
}
