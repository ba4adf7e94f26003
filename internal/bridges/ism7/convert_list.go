package ism7

import "fmt"

// listConverter decodes one telegram as the raw value of a list option.
type listConverter struct {
	accumulator
	telegram uint16
	encoding Encoding
	options  *ListConstraints
}

func newListConverter(tmpl ConverterTemplate, desc *ParameterDescriptor) (Converter, error) {
	if err := requireSingle(tmpl); err != nil {
		return nil, err
	}
	enc := tmpl.encoding()
	for _, opt := range desc.List().Options {
		if _, ok := enc.encodeRaw(opt.Value); !ok {
			return nil, fmt.Errorf("%w: %s: option %d does not fit %s", ErrInvalidTemplate, tmpl.CTID, opt.Value, enc)
		}
	}
	c := &listConverter{
		telegram: tmpl.Telegrams[0],
		encoding: enc,
		options:  desc.List(),
	}
	c.accumulator = newAccumulator(tmpl, c.decode)
	return c, nil
}

func (c *listConverter) decode(p *partSet) (Value, error) {
	low, high := p.bytes(0)
	raw := c.encoding.decodeRaw(low, high)
	opt, ok := c.options.Lookup(raw)
	if !ok {
		return Value{}, fmt.Errorf("%w: raw value %d is not a list option", ErrDecodingFailed, raw)
	}
	return EnumValue(opt.Value, opt.Text), nil
}

// WriteCommands accepts an option display text (case-insensitive) or a
// raw option value.
func (c *listConverter) WriteCommands(value string) ([]WriteCommand, error) {
	opt, ok := c.options.Find(value)
	if !ok {
		return nil, fmt.Errorf("%w: CTID '%s': %q is not a list option", ErrInvalidValue, c.ctid, value)
	}
	word, _ := c.encoding.encodeRaw(opt.Value)
	return []WriteCommand{wordCommand(c.telegram, word)}, nil
}
