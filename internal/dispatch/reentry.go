package dispatch

// CallContext carries the one piece of state every dispatch call needs
// beyond its explicit arguments: whether this call is itself running
// inside another dispatch call on the same goroutine.
//
// In the original C library this guard exists because the software
// fallback is reached by calling back into the very libc symbols the
// library has interposed, so a naive fallback would recurse into its own
// dispatch logic forever. Nothing in this module is interposed — softflate
// is called directly, never through the symbol it's standing in for — so
// the recursion this guard was built to prevent cannot actually occur
// here. CallContext is kept anyway so the dispatch core's call shape and
// its "software once entered is never left" behavior match the original
// exactly, and so a future caller that does wrap these calls behind
// something reentrant (a cgo export, a LD_PRELOAD shim) gets the same
// protection for free.
type CallContext struct {
	inDispatch bool
}

// NewCallContext returns a fresh, non-reentrant call context.
func NewCallContext() *CallContext {
	return &CallContext{}
}

// Enter marks the context as being inside a dispatch call, returning a
// function that restores the previous state. Nested dispatch entry
// points (none currently exist in this module, but accelerator session
// setup done from within Compress/Decompress would qualify) should wrap
// their body in it.
func (c *CallContext) Enter() func() {
	prev := c.inDispatch
	c.inDispatch = true
	return func() { c.inDispatch = prev }
}

func (c *CallContext) reentrant() bool {
	return c != nil && c.inDispatch
}
