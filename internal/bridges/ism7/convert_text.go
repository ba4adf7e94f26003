package ism7

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// charsPerPart is the number of Latin-1 characters one telegram carries.
const charsPerPart = 2

// maxLatin1 is the highest code point Latin-1 can represent.
const maxLatin1 = 0xFF

// textConverter assembles Latin-1 text from several telegrams. Part i holds
// characters 2i (low byte) and 2i+1 (high byte); a NUL ends the text.
type textConverter struct {
	accumulator
}

func newTextConverter(tmpl ConverterTemplate, _ *ParameterDescriptor) (Converter, error) {
	c := &textConverter{}
	c.accumulator = newAccumulator(tmpl, c.decode)
	return c, nil
}

func (c *textConverter) decode(p *partSet) (Value, error) {
	var b strings.Builder
	for i := 0; i < p.count(); i++ {
		low, high := p.bytes(i)
		for _, ch := range [charsPerPart]byte{low, high} {
			if ch == 0 {
				return TextValue(b.String()), nil
			}
			b.WriteRune(rune(ch))
		}
	}
	return TextValue(b.String()), nil
}

// WriteCommands encodes value as Latin-1 into one command per part,
// padding with NUL.
func (c *textConverter) WriteCommands(value string) ([]WriteCommand, error) {
	if !utf8.ValidString(value) {
		return nil, fmt.Errorf("%w: CTID '%s': invalid UTF-8", ErrInvalidValue, c.ctid)
	}
	capacity := c.parts.count() * charsPerPart
	buf := make([]byte, 0, capacity)
	for _, r := range value {
		if r > maxLatin1 || r == 0 {
			return nil, fmt.Errorf("%w: CTID '%s': character %q is not encodable", ErrInvalidValue, c.ctid, r)
		}
		buf = append(buf, byte(r))
	}
	if len(buf) > capacity {
		return nil, fmt.Errorf("%w: CTID '%s': text longer than %d characters", ErrInvalidValue, c.ctid, capacity)
	}
	buf = append(buf, make([]byte, capacity-len(buf))...)

	cmds := make([]WriteCommand, c.parts.count())
	for i, n := range c.parts.numbers {
		cmds[i] = WriteCommand{Telegram: n, Low: buf[2*i], High: buf[2*i+1]}
	}
	return cmds, nil
}
