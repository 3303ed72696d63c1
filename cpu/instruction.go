package cpu

import (
	"fmt"

	"go86/mem"
)

// A Node is anything the dispatch loop can be handed: a decoded instruction
// or a selector standing in for several of them. Nodes carry the graph
// edges; successors are keyed by the linear address they continue at, so a
// branch and its fall-through coexist on one node.
type Node interface {
	Address() mem.SegmentedAddress
	Live() bool
	Successors() map[uint32]Node
	Predecessors() map[Node]LinkKind
	Accept(v Visitor) error
}

// A Visitor executes nodes. The per-family switch lives on the concrete
// visitor, not in a method hierarchy.
type Visitor interface {
	VisitParsed(p *ParsedInstruction) error
	VisitSelector(s *SelectorNode) error
}

// A LinkKind says how a predecessor reaches a node.
type LinkKind int

const (
	// LinkSuccessor is ordinary control flow, sequential or branch.
	LinkSuccessor LinkKind = iota
	// LinkSelectorCandidate marks a candidate hanging under a selector.
	LinkSelectorCandidate
)

// A Family tags the opcode family of a decoded instruction. The executor
// switches over it exhaustively.
type Family int

const (
	FamArithRMReg  Family = iota // ADD..CMP r/m,reg and reg,r/m
	FamArithAccImm               // ADD..CMP AL/AX, imm
	FamGrp1                      // 80-83, operation in the reg field
	FamIncReg                    // 40-47
	FamDecReg                    // 48-4f
	FamPushReg                   // 50-57
	FamPopReg                    // 58-5f
	FamMovRMReg                  // 88-8b
	FamMovMoffs                  // a0-a3
	FamMovRegImm                 // b0-bf
	FamMovRMImm                  // c6/c7
	FamPushf                     // 9c
	FamPopf                      // 9d
	FamJmpShort                  // eb
	FamJmpNear                   // e9
	FamJmpFar                    // ea
	FamJcc                       // 70-7f
	FamCallNear                  // e8
	FamRetNear                   // c3, c2
	FamGrp4                      // fe
	FamGrp5                      // ff
	FamNop                       // 90
	FamHlt                       // f4
	FamFlagOp                    // f5, f8-fd
	FamPrefix                    // not produced by the parser; prefixes are consumed before dispatch
)

// A ParsedInstruction is one decoded x86 instruction, pinned to the address
// it was decoded at and to the byte pattern it was decoded from. It is
// jointly referenced by the caches and the graph; the ReplacerRegistry is
// the only thing allowed to rewrite those references.
type ParsedInstruction struct {
	Def Opcode // the dispatch entry this was parsed from

	addr   mem.SegmentedAddress
	length uint8
	fields []Field

	// prefix state; SegOverride is a segment register index, or -1
	SegOverride int8
	OpSize32    bool
	AddrSize32  bool
	Lock        bool
	Rep         bool
	RepNE       bool

	Op    *InstructionField[uint8]
	Mod   *ModRM
	Imm8  *InstructionField[uint8]
	Imm16 *InstructionField[uint16]
	Imm32 *InstructionField[uint32]
	Rel8  *InstructionField[int8]
	Rel16 *InstructionField[int16]
	Rel32 *InstructionField[int32]
	Far   *InstructionField[mem.SegmentedAddress]
	Moffs *InstructionField[uint16]

	sig      Signature
	sigFinal Signature
	live     bool

	succ map[uint32]Node
	pred map[Node]LinkKind
}

func newParsedInstruction(def Opcode, addr mem.SegmentedAddress) *ParsedInstruction {
	return &ParsedInstruction{
		Def:         def,
		addr:        addr,
		SegOverride: -1,
		succ:        map[uint32]Node{},
		pred:        map[Node]LinkKind{},
	}
}

func (p *ParsedInstruction) Address() mem.SegmentedAddress { return p.addr }

// NextAddress is where linear flow continues, offset-wrapped within CS.
func (p *ParsedInstruction) NextAddress() mem.SegmentedAddress {
	return p.addr.Plus(uint16(p.length))
}

func (p *ParsedInstruction) Length() uint8 { return p.length }

// Live reports whether the byte footprint is still known to be in sync with
// memory. Eviction clears it; revival through the Previous cache sets it
// again.
func (p *ParsedInstruction) Live() bool { return p.live }

func (p *ParsedInstruction) Fields() []Field { return p.fields }

// Signature is the full byte pattern, with wildcards at reduced fields.
func (p *ParsedInstruction) Signature() Signature { return p.sig }

// FinalSignature keeps only the bytes of final fields; it is the identity
// the reducer groups on.
func (p *ParsedInstruction) FinalSignature() Signature { return p.sigFinal }

func (p *ParsedInstruction) Successors() map[uint32]Node     { return p.succ }
func (p *ParsedInstruction) Predecessors() map[Node]LinkKind { return p.pred }

func (p *ParsedInstruction) Accept(v Visitor) error { return v.VisitParsed(p) }

func (p *ParsedInstruction) String() string {
	return fmt.Sprintf("%s @%s [%s]", p.Def.Name, p.addr, p.sig)
}

// addField records a decoded field; fields must be added in stream order.
func (p *ParsedInstruction) addField(f Field) { p.fields = append(p.fields, f) }

// finish computes length and both signatures once all fields are in.
func (p *ParsedInstruction) finish() {
	var n uint16
	for _, f := range p.fields {
		n += uint16(f.ByteLength())
	}
	p.length = uint8(n)

	p.sig = make(Signature, n)
	p.sigFinal = make(Signature, n)
	off := 0
	for _, f := range p.fields {
		for i := range int(f.ByteLength()) {
			b, ok := f.ByteAt(i)
			if !ok {
				p.sig[off] = Wildcard
				p.sigFinal[off] = Wildcard
				off++
				continue
			}
			p.sig[off] = int16(b)
			if f.Final() {
				p.sigFinal[off] = int16(b)
			} else {
				p.sigFinal[off] = Wildcard
			}
			off++
		}
	}
	p.live = true
}

// fieldOffset is the byte offset of a field within the instruction.
func (p *ParsedInstruction) fieldOffset(f Field) int {
	off := 0
	for _, x := range p.fields {
		if x == f {
			return off
		}
		off += int(x.ByteLength())
	}
	return -1
}
