package ism7

import "fmt"

// bitConverter maps one bit of the low byte onto a boolean list.
type bitConverter struct {
	accumulator
	bit     uint8
	options *ListConstraints
}

func newBitConverter(tmpl ConverterTemplate, desc *ParameterDescriptor) (Converter, error) {
	if err := requireSingle(tmpl); err != nil {
		return nil, err
	}
	list := desc.List()
	if !list.IsBoolean {
		return nil, fmt.Errorf("%w: kind bit needs a boolean list (ptid %d)", ErrNoConverter, desc.PTID)
	}
	for _, raw := range []int{0, 1} {
		if _, ok := list.Lookup(raw); !ok {
			return nil, fmt.Errorf("%w: %s: boolean list lacks option %d", ErrInvalidTemplate, tmpl.CTID, raw)
		}
	}
	c := &bitConverter{bit: tmpl.Bit, options: list}
	c.accumulator = newAccumulator(tmpl, c.decode)
	return c, nil
}

func (c *bitConverter) decode(p *partSet) (Value, error) {
	low, _ := p.bytes(0)
	raw := int(low>>c.bit) & 1
	opt, _ := c.options.Lookup(raw)
	return EnumValue(opt.Value, opt.Text), nil
}

// WriteCommands always fails: a single bit cannot be written without
// clobbering its neighbours.
func (c *bitConverter) WriteCommands(string) ([]WriteCommand, error) {
	return nil, c.notImplemented()
}
