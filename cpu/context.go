package cpu

// An ExecutionContext is the per-executor dispatch state threaded through
// every step: what just ran, and what the graph says should run next.
// Cpu.Tick fills both in after each instruction; the CfgNodeFeeder consumes
// them at the top of the next step.
type ExecutionContext struct {
	// LastExecuted is the node that just ran. For a selector step this is
	// the resolved candidate, not the selector, so new edges hang off real
	// instructions.
	LastExecuted Node

	// NextFromGraph is LastExecuted's successor at the new instruction
	// pointer, or nil when the graph has not seen that flow yet.
	NextFromGraph Node
}

// Reset clears the context, e.g. when a front end moves the instruction
// pointer by hand.
func (ctx *ExecutionContext) Reset() {
	ctx.LastExecuted = nil
	ctx.NextFromGraph = nil
}
