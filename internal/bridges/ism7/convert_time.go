package ism7

import "time"

// timeConverter decodes the BM2 two-byte duration: the high byte carries
// whole hours and the low byte minutes. Both arrive in one telegram, so
// the converter is complete after every telegram.
type timeConverter struct {
	accumulator
}

func newTimeConverter(tmpl ConverterTemplate, _ *ParameterDescriptor) (Converter, error) {
	if err := requireSingle(tmpl); err != nil {
		return nil, err
	}
	c := &timeConverter{}
	c.accumulator = newAccumulator(tmpl, c.decode)
	return c, nil
}

func (c *timeConverter) decode(p *partSet) (Value, error) {
	low, high := p.bytes(0)
	return DurationValue(time.Duration(high)*time.Hour + time.Duration(low)*time.Minute), nil
}

// WriteCommands always fails: the controller does not accept BM2 time writes.
func (c *timeConverter) WriteCommands(string) ([]WriteCommand, error) {
	return nil, c.notImplemented()
}
