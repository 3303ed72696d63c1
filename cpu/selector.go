package cpu

import (
	"fmt"

	"go86/mem"
)

// maxSelectorCandidates bounds candidate growth under pathological
// self-modification. Reduction already folds same-shape variants, so only
// genuinely distinct instructions count against the cap; past it, the
// oldest candidate not matching memory is dropped from the selector (it
// stays in the Previous cache, so only the fast path is lost).
const maxSelectorCandidates = 32

// A SelectorNode stands at an address where two or more instructions have
// coexisted. It has no fields of its own; at execution time it picks the
// candidate whose signature matches what memory holds right now. It is
// always live -- it never claims anything about memory, it checks.
type SelectorNode struct {
	bus  *mem.Bus
	addr mem.SegmentedAddress

	candidates []*ParsedInstruction

	succ map[uint32]Node
	pred map[Node]LinkKind
}

func NewSelectorNode(bus *mem.Bus, addr mem.SegmentedAddress) *SelectorNode {
	return &SelectorNode{
		bus:  bus,
		addr: addr,
		succ: map[uint32]Node{},
		pred: map[Node]LinkKind{},
	}
}

func (s *SelectorNode) Address() mem.SegmentedAddress { return s.addr }

func (s *SelectorNode) Live() bool { return true }

func (s *SelectorNode) Successors() map[uint32]Node     { return s.succ }
func (s *SelectorNode) Predecessors() map[Node]LinkKind { return s.pred }

func (s *SelectorNode) Accept(v Visitor) error { return v.VisitSelector(s) }

func (s *SelectorNode) Candidates() []*ParsedInstruction { return s.candidates }

func (s *SelectorNode) HasCandidate(inst *ParsedInstruction) bool {
	for _, c := range s.candidates {
		if c == inst {
			return true
		}
	}
	return false
}

// AddCandidate hangs inst under the selector. All candidates share the
// selector's address; anything else is a wiring bug.
func (s *SelectorNode) AddCandidate(inst *ParsedInstruction) {
	if inst.addr != s.addr {
		panic(fmt.Sprintf("candidate %s on selector at %s", inst, s.addr))
	}
	if s.HasCandidate(inst) {
		return
	}
	if len(s.candidates) >= maxSelectorCandidates {
		s.dropStalest()
	}
	s.candidates = append(s.candidates, inst)
	inst.pred[s] = LinkSelectorCandidate
}

func (s *SelectorNode) dropStalest() {
	for i, c := range s.candidates {
		if !c.sig.Matches(s.bus, s.addr) {
			s.candidates = append(s.candidates[:i], s.candidates[i+1:]...)
			delete(c.pred, Node(s))
			return
		}
	}
	// everything matches (wildcard-heavy sets can do that); drop the oldest
	c := s.candidates[0]
	s.candidates = s.candidates[1:]
	delete(c.pred, Node(s))
}

// Resolve returns the first candidate whose signature matches current
// memory, or nil when the byte pattern is new to this selector. Ties are
// impossible after reduction.
func (s *SelectorNode) Resolve() *ParsedInstruction {
	for _, c := range s.candidates {
		if c.sig.Matches(s.bus, s.addr) {
			return c
		}
	}
	return nil
}

// Replace implements Replacer: reduction rewrites candidate identity in
// place; eviction (new == nil) keeps the candidate, stale candidates are
// exactly what a selector is for.
func (s *SelectorNode) Replace(old, new *ParsedInstruction) {
	if new == nil {
		return
	}
	for i, c := range s.candidates {
		if c != old {
			continue
		}
		if s.HasCandidate(new) {
			s.candidates = append(s.candidates[:i], s.candidates[i+1:]...)
		} else {
			s.candidates[i] = new
		}
		return
	}
}

func (s *SelectorNode) String() string {
	return fmt.Sprintf("selector @%s (%d candidates)", s.addr, len(s.candidates))
}
