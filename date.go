package gofat32

import (
	"time"
)

// ParseDate decodes a FAT date stamp:
//  Bits 0–4: day of month (1–31)
//  Bits 5–8: month of year (1–12)
//  Bits 9–15: years since 1980 (0–127)
// The returned time is always at 00:00:00 UTC.
//
// Day 0 or month 0 are invalid, time.Time{} is returned for them so that IsZero() can be used.
// A month above 12 rolls over into the next year.
func ParseDate(input uint16) time.Time {
	dayOfMonth := input & 0x001F
	monthOfYear := input & 0x01E0 >> 5
	yearSince1980 := input & 0xFE00 >> 9

	if dayOfMonth == 0 || monthOfYear == 0 {
		return time.Time{}
	}

	return time.Date(1980+int(yearSince1980), time.Month(monthOfYear), int(dayOfMonth), 0, 0, 0, 0, time.UTC)
}

// ParseTime decodes a FAT time stamp with a granularity of two seconds:
//  Bits 0–4: seconds / 2 (0–29)
//  Bits 5–10: minutes (0–59)
//  Bits 11–15: hours (0–23)
// The returned time is on January 1 of year 1, so midnight is time.Time{}.
// Out of range values are capped at 23:59:59.
func ParseTime(input uint16) time.Time {
	seconds := int(input&0x001F) * 2
	minutes := input & 0x07E0 >> 5
	hours := input & 0xF800 >> 11

	result := time.Date(1, 1, 1, int(hours), int(minutes), seconds, 0, time.UTC)
	if result.Day() > 1 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}
	return result
}

// packDate encodes the date of t. Dates before 1980 are stored as 1980-01-01,
// dates after 2107 as 2107-12-31.
func packDate(t time.Time) uint16 {
	year, month, day := t.Date()
	switch {
	case year < 1980:
		year, month, day = 1980, time.January, 1
	case year > 2107:
		year, month, day = 2107, time.December, 31
	}
	return uint16(year-1980)<<9&0xFE00 | uint16(month)<<5&0x01E0 | uint16(day)&0x001F
}

// packTime encodes the time of day of t, truncated to two seconds.
func packTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11&0xF800 | uint16(t.Minute())<<5&0x07E0 | uint16(t.Second()/2)&0x001F
}

// packDateTime returns date, time and the creation tenths (0–199) for the odd second
// and sub second part.
func packDateTime(t time.Time) (uint16, uint16, byte) {
	tenth := byte((t.Second()%2)*100 + t.Nanosecond()/10000000)
	return packDate(t), packTime(t), tenth
}
