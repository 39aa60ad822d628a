package protocol

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

const (
	// MaskSize is the wire size of an entitlement mask
	MaskSize = 16
	// MaskBits is the number of package slots a mask can address
	MaskBits = MaskSize * 8
)

// Mask is a 128-bit entitlement set. Bit i authorizes package slot i and is
// stored in byte i/8 at bit position i%8, i.e. a little-endian 128-bit integer.
type Mask [MaskSize]byte

// MaskOf builds a mask with the given bits set
func MaskOf(slots ...int) (Mask, error) {
	var m Mask
	for _, i := range slots {
		if err := m.Set(i); err != nil {
			return Mask{}, err
		}
	}
	return m, nil
}

// Set marks slot i as authorized
func (m *Mask) Set(i int) error {
	if i < 0 || i >= MaskBits {
		return validationError("mask set", fmt.Errorf("%w: %d", ErrMaskBit, i))
	}
	m[i/8] |= 1 << uint(i%8)
	return nil
}

// Clear removes slot i
func (m *Mask) Clear(i int) error {
	if i < 0 || i >= MaskBits {
		return validationError("mask clear", fmt.Errorf("%w: %d", ErrMaskBit, i))
	}
	m[i/8] &^= 1 << uint(i%8)
	return nil
}

// Has reports whether slot i is set. Out-of-range slots are never set.
func (m Mask) Has(i int) bool {
	if i < 0 || i >= MaskBits {
		return false
	}
	return m[i/8]&(1<<uint(i%8)) != 0
}

// Slots lists the set bits in ascending order
func (m Mask) Slots() []int {
	slots := make([]int, 0, m.Count())
	for i := 0; i < MaskBits; i++ {
		if m.Has(i) {
			slots = append(slots, i)
		}
	}
	return slots
}

// Count returns the number of set bits
func (m Mask) Count() int {
	n := 0
	for _, b := range m {
		n += bits.OnesCount8(b)
	}
	return n
}

// IsZero reports whether no slot is set
func (m Mask) IsZero() bool {
	return m == Mask{}
}

// String renders the mask as a comma separated slot list
func (m Mask) String() string {
	slots := m.Slots()
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = strconv.Itoa(s)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// ParseMask parses a comma separated slot list such as "0,1,127"
func ParseMask(s string) (Mask, error) {
	var m Mask
	s = strings.Trim(strings.TrimSpace(s), "{}")
	if s == "" {
		return m, nil
	}
	for _, part := range strings.Split(s, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Mask{}, validationError("parse mask", fmt.Errorf("%w: %q", ErrMaskBit, part))
		}
		if err := m.Set(i); err != nil {
			return Mask{}, err
		}
	}
	return m, nil
}
