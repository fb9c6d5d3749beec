package ir

// Invariant is panicked when a mutator discovers the CFG or use/def graph
// has been left in a state one of spec.md §8's universal invariants
// forbids (e.g. erasing a block that still has predecessors). Per spec.md
// §7 ("Invariant violations ... are never recoverable"), this is a
// programming bug, not a reportable compiler diagnostic: it is recovered,
// if at all, only once at the top of cmd/scathac for a clean diagnostic
// exit rather than a raw Go stack trace.
type Invariant struct {
	Msg string
}

func (e Invariant) Error() string { return e.Msg }
