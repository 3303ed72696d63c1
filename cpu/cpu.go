package cpu

import (
	"strconv"
	"strings"

	"go86/mem"
)

// The Cpu wires the core together: one Bus, one register State, one arbiter,
// one executor, one dispatch context. Everything is connected by pointer at
// construction; there are no globals to reach for.
//
// Each Tick is one step of the dispatch cycle:
//
//	arbitrate (CfgNodeFeeder) -> link -> execute -> update context
//
// Parsing only ever happens inside the arbiter on a cache miss, and all
// watchpoint callbacks fire inside execute, so from the outside a step is
// atomic.
type Cpu struct {
	Bus   *mem.Bus
	State *State

	Registry *ReplacerRegistry
	Feeder   *CfgNodeFeeder
	Exec     *Executor

	Ctx ExecutionContext
}

func New(bus *mem.Bus) *Cpu {
	state := &State{}
	registry := NewReplacerRegistry()
	feeder := NewCfgNodeFeeder(bus, state, registry)
	return &Cpu{
		Bus:      bus,
		State:    state,
		Registry: registry,
		Feeder:   feeder,
		Exec:     NewExecutor(bus, state, feeder),
	}
}

// Tick runs a single arbitrate/link/execute cycle.
func (c *Cpu) Tick() error {
	node, err := c.Feeder.GetLinkedNodeToExecute(&c.Ctx)
	if err != nil {
		return err
	}
	if err := node.Accept(c.Exec); err != nil {
		return err
	}
	executed := c.Exec.Resolved()
	c.Ctx.LastExecuted = executed
	c.Ctx.NextFromGraph = executed.Successors()[c.State.IPSegmented().Linear()]
	return nil
}

// Run ticks until a HLT executes or dispatch fails.
func (c *Cpu) Run() error {
	for !c.Exec.Halted() {
		if err := c.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// Jump moves the instruction pointer by hand and clears the dispatch
// context, since the graph knows nothing about teleports.
func (c *Cpu) Jump(addr mem.SegmentedAddress) {
	c.State.CS = addr.Segment
	c.State.IP = addr.Offset
	c.Ctx.Reset()
}

// LoadProgram reads whitespace-separated hex byte text ("b8 34 12 f4") and
// places the bytes at the given address. Raw binaries go through LoadImage.
func (c *Cpu) LoadProgram(program string, addr mem.SegmentedAddress) {
	for i, s := range strings.Fields(program) {
		b, err := strconv.ParseUint(s, 16, 8)
		if err != nil {
			panic(err)
		}
		c.Bus.Ram[addr.Plus(uint16(i)).Linear()] = byte(b)
	}
}

// LoadImage places a raw binary image at the given address.
func (c *Cpu) LoadImage(image []byte, addr mem.SegmentedAddress) {
	c.Bus.LoadBytes(addr, image)
}
