package bidding

// SetRandInt overrides the tie-break draw in tests.
func (e *Engine) SetRandInt(fn func(n int) int) {
	e.randInt = fn
}
