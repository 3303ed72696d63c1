package cpu

import (
	"go86/mem"
)

// The InstructionsFeeder is the "parse or reuse" front end over the caches:
// Current hit, else a Previous instance matching memory, else a fresh parse.
// Whatever comes back has a signature matching the bytes at its address.
type InstructionsFeeder struct {
	Current  *CurrentInstructions
	Previous *PreviousInstructions

	parser *Parser
}

func NewInstructionsFeeder(bus *mem.Bus, registry *ReplacerRegistry) *InstructionsFeeder {
	return &InstructionsFeeder{
		Current:  NewCurrentInstructions(bus, registry),
		Previous: NewPreviousInstructions(bus, registry),
		parser:   &Parser{Bus: bus},
	}
}

// GetFromMemory returns the canonical instruction at addr.
func (f *InstructionsFeeder) GetFromMemory(addr mem.SegmentedAddress) (*ParsedInstruction, error) {
	if inst := f.Current.Get(addr); inst != nil {
		return inst, nil
	}
	if prev := f.Previous.GetIfMatchesMemory(addr); prev != nil {
		// the site reverted to a known byte pattern; revive the original
		// instance, graph edges and all
		logger.Logf("revive %s", prev)
		f.Current.SetAsCurrent(prev)
		return prev, nil
	}
	inst, err := f.parser.ParseAt(addr)
	if err != nil {
		return nil, err
	}
	f.Current.SetAsCurrent(inst)
	f.Previous.Add(inst)
	return inst, nil
}

// Revive puts a known instance back in the Current cache, re-arming its
// watchpoints. Used when a selector resolves to a candidate that had been
// evicted.
func (f *InstructionsFeeder) Revive(inst *ParsedInstruction) {
	f.Current.SetAsCurrent(inst)
}

// The CfgNodeFeeder is the arbiter between what the graph believes and what
// memory holds. The graph's suggestion is trusted while its node is live;
// a stale suggestion is checked against a fresh fetch, and genuine
// divergence gets a selector installed over the address.
type CfgNodeFeeder struct {
	Insts *InstructionsFeeder

	bus      *mem.Bus
	state    *State
	linker   NodeLinker
	reducer  *SignatureReducer
	registry *ReplacerRegistry

	selectors map[mem.SegmentedAddress]*SelectorNode
}

func NewCfgNodeFeeder(bus *mem.Bus, state *State, registry *ReplacerRegistry) *CfgNodeFeeder {
	registry.Register(graphEdges{})
	return &CfgNodeFeeder{
		Insts:     NewInstructionsFeeder(bus, registry),
		bus:       bus,
		state:     state,
		reducer:   NewSignatureReducer(registry),
		registry:  registry,
		selectors: map[mem.SegmentedAddress]*SelectorNode{},
	}
}

// GetLinkedNodeToExecute produces the node for this step and records the
// edge from the previous one.
func (c *CfgNodeFeeder) GetLinkedNodeToExecute(ctx *ExecutionContext) (Node, error) {
	toExecute, err := c.determine(ctx.NextFromGraph)
	if err != nil {
		return nil, err
	}
	if ctx.LastExecuted != nil {
		c.linker.Link(ctx.LastExecuted, toExecute)
	}
	return toExecute, nil
}

func (c *CfgNodeFeeder) determine(suggested Node) (Node, error) {
	ip := c.state.IPSegmented()

	// the graph has never seen this address
	if suggested == nil {
		return c.Insts.GetFromMemory(ip)
	}

	// watchpoints guarantee a live node matches memory; trust the graph
	if suggested.Live() {
		return suggested, nil
	}

	fromMemory, err := c.Insts.GetFromMemory(ip)
	if err != nil {
		return nil, err
	}

	// nominal case: the feeder's Previous->Current promotion just revived
	// the very node the graph suggested
	if Node(fromMemory) == suggested {
		return suggested, nil
	}

	if fromMemory.Address() != suggested.Address() {
		return nil, CfgDiscrepancyError{Graph: suggested.Address(), Memory: fromMemory.Address()}
	}

	// selectors are always live, so a stale suggestion is a parsed node
	sug, ok := suggested.(*ParsedInstruction)
	if !ok {
		return nil, CfgDiscrepancyError{Graph: suggested.Address(), Memory: fromMemory.Address()}
	}

	// same address, different instance: self-modifying code. Same-shape
	// variants fold into one node; true divergence gets a selector.
	if survivor := c.reducer.ReduceToOne(fromMemory, sug); survivor != nil {
		return survivor, nil
	}
	return c.selectorFor(ip, fromMemory, sug), nil
}

func (c *CfgNodeFeeder) selectorFor(addr mem.SegmentedAddress, a, b *ParsedInstruction) *SelectorNode {
	sel := c.selectors[addr]
	if sel == nil {
		sel = NewSelectorNode(c.bus, addr)
		c.registry.Register(sel)
		c.selectors[addr] = sel
		logger.Logf("selector installed at %s", addr)
	}
	for _, cand := range []*ParsedInstruction{a, b} {
		if !sel.HasCandidate(cand) {
			sel.AddCandidate(cand)
			c.linker.InsertIntermediatePredecessor(cand, sel)
		}
	}
	return sel
}

// ResolveSelector picks the candidate matching memory, reviving it if it
// had been evicted. An unknown byte pattern is a cache miss: the feeder
// parses it fresh and the selector learns it as a new candidate.
func (c *CfgNodeFeeder) ResolveSelector(s *SelectorNode) (*ParsedInstruction, error) {
	if inst := s.Resolve(); inst != nil {
		if !inst.Live() {
			c.Insts.Revive(inst)
		}
		return inst, nil
	}
	inst, err := c.Insts.GetFromMemory(s.Address())
	if err != nil {
		return nil, err
	}
	s.AddCandidate(inst)
	return inst, nil
}

// Selector returns the selector installed at addr, if any.
func (c *CfgNodeFeeder) Selector(addr mem.SegmentedAddress) *SelectorNode {
	return c.selectors[addr]
}
