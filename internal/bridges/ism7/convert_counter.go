package ism7

import "math"

// counterFactorBase is the weight step between consecutive counter parts.
const counterFactorBase = 1000

// counterConverter combines several telegram words into one number:
// sum(word[i] * factor[i]) / divisor. Typical use is an energy or
// operating-hours counter split into units, thousands and millions.
type counterConverter struct {
	accumulator
	factors []float64
	divisor float64
}

func newCounterConverter(tmpl ConverterTemplate, _ *ParameterDescriptor) (Converter, error) {
	factors := tmpl.Factors
	if len(factors) == 0 {
		factors = make([]float64, len(tmpl.Telegrams))
		for i := range factors {
			factors[i] = math.Pow(counterFactorBase, float64(i))
		}
	}
	c := &counterConverter{
		factors: append([]float64(nil), factors...),
		divisor: tmpl.divisor(),
	}
	c.accumulator = newAccumulator(tmpl, c.decode)
	return c, nil
}

func (c *counterConverter) decode(p *partSet) (Value, error) {
	var sum float64
	for i := 0; i < p.count(); i++ {
		sum += float64(p.word(i)) * c.factors[i]
	}
	return NumberValue(sum / c.divisor), nil
}

// WriteCommands always fails: counters are read-only.
func (c *counterConverter) WriteCommands(string) ([]WriteCommand, error) {
	return nil, c.notImplemented()
}
