package ism7

// maxParts is the largest number of telegrams one converter can assemble.
const maxParts = 64

// partSet accumulates the telegram parts of one converter.
//
// Every part is a telegram number with its latest two data bytes. The seen
// mask records which parts arrived since the last reset; the set is complete
// once every part has been seen. Arrival order does not matter and a part
// that arrives twice simply replaces its earlier bytes.
type partSet struct {
	numbers []uint16
	low     []byte
	high    []byte
	seen    uint64
	full    uint64
}

// newPartSet creates an accumulator for the given telegram numbers.
// Callers validate count and uniqueness.
func newPartSet(numbers []uint16) partSet {
	p := partSet{
		numbers: append([]uint16(nil), numbers...),
		low:     make([]byte, len(numbers)),
		high:    make([]byte, len(numbers)),
	}
	if len(numbers) == maxParts {
		p.full = ^uint64(0)
	} else {
		p.full = uint64(1)<<len(numbers) - 1
	}
	return p
}

// index returns the part position of a telegram number, or -1.
func (p *partSet) index(number uint16) int {
	for i, n := range p.numbers {
		if n == number {
			return i
		}
	}
	return -1
}

// add stores the bytes of t. It returns false for foreign telegram numbers.
func (p *partSet) add(t Telegram) bool {
	i := p.index(t.Number)
	if i < 0 {
		return false
	}
	p.low[i] = t.Low
	p.high[i] = t.High
	p.seen |= uint64(1) << i
	return true
}

// complete reports whether every part has arrived since the last reset.
func (p *partSet) complete() bool {
	return p.full != 0 && p.seen == p.full
}

// partial reports whether some but not all parts have arrived.
func (p *partSet) partial() bool {
	return p.seen != 0 && !p.complete()
}

// reset forgets which parts have arrived. Stored bytes are kept but are
// not observable until every part has arrived again.
func (p *partSet) reset() {
	p.seen = 0
}

// bytes returns the stored bytes of part i.
func (p *partSet) bytes(i int) (low, high byte) {
	return p.low[i], p.high[i]
}

// word returns part i as an unsigned 16-bit value.
func (p *partSet) word(i int) uint16 {
	return uint16(p.high[i])<<byteShift | uint16(p.low[i])
}

// count returns the number of parts.
func (p *partSet) count() int {
	return len(p.numbers)
}
