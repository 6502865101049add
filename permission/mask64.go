package permission

// Mask64 is a permission set. Bit 63 is the wildcard when the registry reserves it.
type Mask64 uint64

const wildcardBit = 63

func (m Mask64) Has(bit int, wildcardReserved bool) bool {
	if wildcardReserved && m&(1<<wildcardBit) != 0 {
		return true
	}
	if bit < 0 || bit >= 64 {
		return false
	}
	return m&(1<<bit) != 0
}

func (m *Mask64) Set(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m |= 1 << bit
}

func (m *Mask64) Clear(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m &^= 1 << bit
}

// Wildcard reports whether the wildcard bit is set.
func (m Mask64) Wildcard() bool {
	return m&(1<<wildcardBit) != 0
}

func (m Mask64) Raw() uint64 {
	return uint64(m)
}
