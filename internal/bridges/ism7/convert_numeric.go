package ism7

import (
	"fmt"
	"math"
)

// stepTolerance absorbs float error when checking step alignment.
const stepTolerance = 1e-9

// numericConverter decodes one telegram as an integer divided by the
// template divisor.
type numericConverter struct {
	accumulator
	telegram    uint16
	encoding    Encoding
	divisor     float64
	constraints *NumericConstraints
}

func newNumericConverter(tmpl ConverterTemplate, desc *ParameterDescriptor) (Converter, error) {
	if err := requireSingle(tmpl); err != nil {
		return nil, err
	}
	c := &numericConverter{
		telegram:    tmpl.Telegrams[0],
		encoding:    tmpl.encoding(),
		divisor:     tmpl.divisor(),
		constraints: desc.Numeric(),
	}
	c.accumulator = newAccumulator(tmpl, c.decode)
	return c, nil
}

func (c *numericConverter) decode(p *partSet) (Value, error) {
	low, high := p.bytes(0)
	return NumberValue(float64(c.encoding.decodeRaw(low, high)) / c.divisor), nil
}

// WriteCommands parses value as an invariant decimal number, enforces the
// descriptor's min, max and step, and encodes round(value * divisor).
func (c *numericConverter) WriteCommands(value string) ([]WriteCommand, error) {
	v, err := parseInvariantFloat(value)
	if err != nil {
		return nil, fmt.Errorf("%w: CTID '%s': %q is not a number", ErrInvalidValue, c.ctid, value)
	}
	if err := c.checkConstraints(v); err != nil {
		return nil, err
	}

	scaled := math.Round(v * c.divisor)
	if scaled < math.MinInt32 || scaled > math.MaxInt32 {
		return nil, fmt.Errorf("%w: CTID '%s': %s does not fit %s", ErrOutOfRange, c.ctid, value, c.encoding)
	}
	word, ok := c.encoding.encodeRaw(int(scaled))
	if !ok {
		return nil, fmt.Errorf("%w: CTID '%s': %s does not fit %s", ErrOutOfRange, c.ctid, value, c.encoding)
	}
	return []WriteCommand{wordCommand(c.telegram, word)}, nil
}

func (c *numericConverter) checkConstraints(v float64) error {
	lower, hasMin := c.constraints.Min()
	if hasMin && v < lower {
		return fmt.Errorf("%w: CTID '%s': %g below minimum %g", ErrOutOfRange, c.ctid, v, lower)
	}
	if upper, ok := c.constraints.Max(); ok && v > upper {
		return fmt.Errorf("%w: CTID '%s': %g above maximum %g", ErrOutOfRange, c.ctid, v, upper)
	}
	if step, ok := c.constraints.Step(); ok {
		base := 0.0
		if hasMin {
			base = lower
		}
		n := (v - base) / step
		if math.Abs(n-math.Round(n)) > stepTolerance*math.Max(1, math.Abs(n)) {
			return fmt.Errorf("%w: CTID '%s': %g is not a multiple of step %g", ErrOutOfRange, c.ctid, v, step)
		}
	}
	return nil
}
