package protocol

import (
	"encoding/binary"
	"strings"
	"time"
	"unicode/utf8"
)

// DateSize is the wire size of a Date: u16 year, u8 month, u8 day
const DateSize = 4

// Date is a calendar date as carried on the wire. The zero value means "none".
type Date struct {
	Year  uint16
	Month uint8
	Day   uint8
}

// DateOf converts t to a Date
func DateOf(t time.Time) Date {
	return Date{Year: uint16(t.Year()), Month: uint8(t.Month()), Day: uint8(t.Day())}
}

// IsZero reports whether d is the "none" date
func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns d at midnight in loc
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(int(d.Year), time.Month(d.Month), int(d.Day), 0, 0, 0, 0, loc)
}

// Before reports whether d is strictly earlier than other
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

func (d Date) String() string {
	if d.IsZero() {
		return "-"
	}
	return d.Time(time.UTC).Format("2006-01-02")
}

func putDate(dst []byte, d Date) {
	binary.LittleEndian.PutUint16(dst[0:2], d.Year)
	dst[2] = d.Month
	dst[3] = d.Day
}

func getDate(src []byte) Date {
	return Date{
		Year:  binary.LittleEndian.Uint16(src[0:2]),
		Month: src[2],
		Day:   src[3],
	}
}

// putText writes s into a fixed-width field, null-padded. Text longer than
// the field is cut on a rune boundary.
func putText(dst []byte, s string) {
	n := len(dst)
	if len(s) > n {
		cut := n
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	copy(dst, s)
	for i := len(s); i < n; i++ {
		dst[i] = 0
	}
}

// getText decodes a fixed-width field, trimming trailing NUL and space padding
func getText(src []byte) string {
	return strings.TrimRight(string(src), "\x00 ")
}

func putBool(dst []byte, v bool) {
	if v {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
}
