package cpu

import (
	"go86/mem"
)

// maxInstructionLength is the architectural 15-byte cap; a longer encoding
// can only be a runaway prefix chain.
const maxInstructionLength = 15

// prefix bytes of the one-byte opcode map
const (
	prefixES   = 0x26
	prefixCS   = 0x2e
	prefixSS   = 0x36
	prefixDS   = 0x3e
	prefixFS   = 0x64
	prefixGS   = 0x65
	prefixOp32 = 0x66
	prefixAd32 = 0x67
	prefixLock = 0xf0
	prefixRepN = 0xf2
	prefixRep  = 0xf3
)

func isPrefix(b byte) bool {
	switch b {
	case prefixES, prefixCS, prefixSS, prefixDS, prefixFS, prefixGS,
		prefixOp32, prefixAd32, prefixLock, prefixRepN, prefixRep:
		return true
	}
	return false
}

// A Parser decodes one instruction at a time straight off the Bus. It holds
// no state of its own; determinism over (memory content, seed address) is
// what the caches rely on.
type Parser struct {
	Bus *mem.Bus
}

// ParseAt decodes the instruction at the seed address. Every byte consumed
// becomes a field: prefixes, opcode and ModR/M bytes are final (identity),
// displacements and immediates are not.
func (ps *Parser) ParseAt(addr mem.SegmentedAddress) (*ParsedInstruction, error) {
	r := NewFieldReader(ps.Bus, addr)
	inst := newParsedInstruction(Opcode{}, addr)

	for {
		if r.Position() >= maxInstructionLength {
			// the last byte of the run is the prefix that sits where the
			// opcode had to be
			last := addr.Plus(r.Position() - 1)
			return nil, InvalidOpcodeBecausePrefixError{Addr: addr, Byte: ps.Bus.ReadU8(last.Linear())}
		}
		b := r.PeekByte()
		if !isPrefix(b) {
			break
		}
		f := r.UInt8(true)
		inst.addField(f)
		switch b {
		case prefixES:
			inst.SegOverride = SegES
		case prefixCS:
			inst.SegOverride = SegCS
		case prefixSS:
			inst.SegOverride = SegSS
		case prefixDS:
			inst.SegOverride = SegDS
		case prefixFS:
			inst.SegOverride = SegFS
		case prefixGS:
			inst.SegOverride = SegGS
		case prefixOp32:
			inst.OpSize32 = true
		case prefixAd32:
			inst.AddrSize32 = true
		case prefixLock:
			inst.Lock = true
		case prefixRepN:
			inst.RepNE = true
		case prefixRep:
			inst.Rep = true
		}
	}

	opb := r.PeekByte()
	def, ok := Opcodes[opb]
	if !ok {
		return nil, InvalidOpcodeError{Addr: addr, Byte: opb}
	}
	inst.Def = def
	inst.Op = r.UInt8(true)
	inst.addField(inst.Op)

	if def.Parse != nil {
		if err := def.Parse(r, inst); err != nil {
			return nil, err
		}
	}

	inst.finish()
	return inst, nil
}
