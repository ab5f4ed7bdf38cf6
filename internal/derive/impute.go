package derive

import "math"

// proxyWindow holds the trailing valid base prices used to impute a week
// whose base price is not computable from any vendor column. The window
// length is a policy parameter from configuration.
type proxyWindow struct {
	size   int
	values []float64
}

func newProxyWindow(size int) *proxyWindow {
	if size < 1 {
		size = 1
	}
	return &proxyWindow{size: size}
}

// push records a week's resolved base price as future imputation input.
func (p *proxyWindow) push(v float64) {
	if !isUsable(v) {
		return
	}
	p.values = append(p.values, v)
	if len(p.values) > p.size {
		p.values = p.values[1:]
	}
}

// mean returns the trailing mean, or NaN when no history exists yet.
func (p *proxyWindow) mean() float64 {
	if len(p.values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range p.values {
		sum += v
	}
	return sum / float64(len(p.values))
}
