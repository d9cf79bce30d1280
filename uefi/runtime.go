// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"time"
)

// EFI_UNSPECIFIED_TIMEZONE
const UnspecifiedTimezone = 0x07ff

// EFI_TIME daylight flags
const (
	EFI_TIME_ADJUST_DAYLIGHT = 0x01
	EFI_TIME_IN_DAYLIGHT     = 0x02
)

// RuntimeServices represents an EFI Runtime Services instance, which remains
// available after exiting Boot Services.
type RuntimeServices struct {
	table RuntimeTable
}

// Time represents an EFI_TIME instance.
type Time struct {
	Year       uint16
	Month      uint8
	Day        uint8
	Hour       uint8
	Minute     uint8
	Second     uint8
	_          uint8
	Nanosecond uint32
	TimeZone   int16
	Daylight   uint8
	_          uint8
}

// TimeCapabilities represents an EFI_TIME_CAPABILITIES instance.
type TimeCapabilities struct {
	Resolution uint32
	Accuracy   uint32
	SetsToZero bool
}

// NewTime converts a [time.Time] to an EFI_TIME instance.
func NewTime(t time.Time) *Time {
	_, offset := t.Zone()

	return &Time{
		Year:       uint16(t.Year()),
		Month:      uint8(t.Month()),
		Day:        uint8(t.Day()),
		Hour:       uint8(t.Hour()),
		Minute:     uint8(t.Minute()),
		Second:     uint8(t.Second()),
		Nanosecond: uint32(t.Nanosecond()),
		TimeZone:   int16(offset / 60),
	}
}

// Time converts the EFI_TIME instance to a [time.Time], an unspecified time
// zone is interpreted as UTC.
func (t *Time) Time() time.Time {
	loc := time.UTC

	if t.TimeZone != UnspecifiedTimezone && t.TimeZone != 0 {
		loc = time.FixedZone("", int(t.TimeZone)*60)
	}

	return time.Date(int(t.Year), time.Month(t.Month), int(t.Day),
		int(t.Hour), int(t.Minute), int(t.Second), int(t.Nanosecond), loc)
}

// GetTime calls EFI_RUNTIME_SERVICES.GetTime().
func (s *RuntimeServices) GetTime() (t *Time, c *TimeCapabilities, err error) {
	t = &Time{}
	c = &TimeCapabilities{}

	if err = parseStatus("EFI_RUNTIME_SERVICES.GetTime", s.table.GetTime(t, c)); err != nil {
		return nil, nil, err
	}

	return
}

// SetTime calls EFI_RUNTIME_SERVICES.SetTime().
func (s *RuntimeServices) SetTime(t time.Time) (err error) {
	return parseStatus("EFI_RUNTIME_SERVICES.SetTime", s.table.SetTime(NewTime(t)))
}

// GetNextHighMonotonicCount calls
// EFI_RUNTIME_SERVICES.GetNextHighMonotonicCount().
func (s *RuntimeServices) GetNextHighMonotonicCount() (count uint32, err error) {
	err = parseStatus("EFI_RUNTIME_SERVICES.GetNextHighMonotonicCount", s.table.GetNextHighMonotonicCount(&count))
	return
}
