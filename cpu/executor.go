package cpu

import (
	"go86/mask"
	"go86/mem"
)

// The Executor is the visitor that gives nodes their semantic effect:
// register and flag updates, memory traffic, instruction pointer movement.
// One switch over the family tag, exhaustive over everything the parser can
// produce.
//
// Any field whose UseValue bit has been cleared by the reducer is re-read
// from the live bus here, never taken from the decode-time copy.
type Executor struct {
	bus    *mem.Bus
	state  *State
	feeder *CfgNodeFeeder

	// resolved is the instruction actually run this step; for a selector
	// step it is the matched candidate
	resolved *ParsedInstruction
	halted   bool
}

func NewExecutor(bus *mem.Bus, state *State, feeder *CfgNodeFeeder) *Executor {
	return &Executor{bus: bus, state: state, feeder: feeder}
}

// Halted reports whether a HLT has been executed.
func (e *Executor) Halted() bool { return e.halted }

// Resolved is the instruction the last Accept actually ran.
func (e *Executor) Resolved() *ParsedInstruction { return e.resolved }

func (e *Executor) VisitSelector(s *SelectorNode) error {
	inst, err := e.feeder.ResolveSelector(s)
	if err != nil {
		return err
	}
	return e.VisitParsed(inst)
}

func (e *Executor) VisitParsed(p *ParsedInstruction) error {
	e.resolved = p
	s := e.state

	// linear flow first; branches overwrite below
	s.IP = p.NextAddress().Offset

	bits := opBits(p)

	switch p.Def.Family {
	case FamNop:

	case FamHlt:
		e.halted = true

	case FamFlagOp:
		e.flagOp(p)

	case FamArithRMReg:
		rmv := e.readRM(p, bits)
		regv := e.regRead(p.Mod.Reg, bits)
		if p.Def.ToReg {
			res := e.alu(p.Def.Alu, regv, rmv, bits)
			if p.Def.Alu != AluCmp {
				e.regWrite(p.Mod.Reg, bits, res)
			}
		} else {
			res := e.alu(p.Def.Alu, rmv, regv, bits)
			if p.Def.Alu != AluCmp {
				e.writeRM(p, bits, res)
			}
		}

	case FamArithAccImm:
		res := e.alu(p.Def.Alu, e.regRead(RegAX, bits), e.immVal(p, bits), bits)
		if p.Def.Alu != AluCmp {
			e.regWrite(RegAX, bits, res)
		}

	case FamGrp1:
		op := p.Mod.Reg
		res := e.alu(op, e.readRM(p, bits), e.immVal(p, bits), bits)
		if op != AluCmp {
			e.writeRM(p, bits, res)
		}

	case FamIncReg:
		e.regWrite(p.Def.RegIdx, bits, e.incdec(e.regRead(p.Def.RegIdx, bits), bits, false))

	case FamDecReg:
		e.regWrite(p.Def.RegIdx, bits, e.incdec(e.regRead(p.Def.RegIdx, bits), bits, true))

	case FamPushReg:
		e.push16(s.Reg16(p.Def.RegIdx))

	case FamPopReg:
		s.SetReg16(p.Def.RegIdx, e.pop16())

	case FamPushf:
		e.push16(s.FlagsWord())

	case FamPopf:
		s.SetFlagsWord(e.pop16())

	case FamMovRMReg:
		if p.Def.ToReg {
			e.regWrite(p.Mod.Reg, bits, e.readRM(p, bits))
		} else {
			e.writeRM(p, bits, e.regRead(p.Mod.Reg, bits))
		}

	case FamMovMoffs:
		addr := mem.SegmentedAddress{Segment: s.Seg(e.moffsSeg(p)), Offset: p.Moffs.Load(e.bus)}
		if p.Def.ToReg {
			e.regWrite(RegAX, bits, e.readMem(addr, bits))
		} else {
			e.writeMem(addr, bits, e.regRead(RegAX, bits))
		}

	case FamMovRegImm:
		e.regWrite(p.Def.RegIdx, bits, e.immVal(p, bits))

	case FamMovRMImm:
		e.writeRM(p, bits, e.immVal(p, bits))

	case FamJmpShort, FamJmpNear:
		s.IP += uint16(e.relVal(p))

	case FamJmpFar:
		t := p.Far.Load(e.bus)
		s.CS = t.Segment
		s.IP = t.Offset

	case FamJcc:
		if e.cond(p.Def.Cc) {
			s.IP += uint16(e.relVal(p))
		}

	case FamCallNear:
		e.push16(s.IP)
		s.IP += uint16(e.relVal(p))

	case FamRetNear:
		s.IP = e.pop16()
		if p.Imm16 != nil {
			s.SetReg16(RegSP, s.Reg16(RegSP)+p.Imm16.Load(e.bus))
		}

	case FamGrp4:
		v := e.readRM(p, 8)
		e.writeRM(p, 8, e.incdec(v, 8, p.Mod.Reg == 1))

	case FamGrp5:
		return e.grp5(p, bits)
	}

	return nil
}

func (e *Executor) grp5(p *ParsedInstruction, bits int) error {
	s := e.state
	switch p.Mod.Reg {
	case 0: // inc r/m
		e.writeRM(p, bits, e.incdec(e.readRM(p, bits), bits, false))
	case 1: // dec r/m
		e.writeRM(p, bits, e.incdec(e.readRM(p, bits), bits, true))
	case 2: // call near indirect
		target := uint16(e.readRM(p, 16))
		e.push16(s.IP)
		s.IP = target
	case 3: // call far indirect
		addr, _ := p.Mod.MemAddress(s, e.bus, p.SegOverride)
		off := uint16(e.readMem(addr, 16))
		seg := uint16(e.readMem(addr.Plus(2), 16))
		e.push16(s.CS)
		e.push16(s.IP)
		s.CS, s.IP = seg, off
	case 4: // jmp near indirect
		s.IP = uint16(e.readRM(p, 16))
	case 5: // jmp far indirect
		addr, _ := p.Mod.MemAddress(s, e.bus, p.SegOverride)
		s.IP = uint16(e.readMem(addr, 16))
		s.CS = uint16(e.readMem(addr.Plus(2), 16))
	case 6: // push r/m
		e.push16(uint16(e.readRM(p, 16)))
	}
	return nil
}

func (e *Executor) flagOp(p *ParsedInstruction) {
	f := &e.state.Flags
	switch p.Op.Parsed() {
	case 0xf5:
		f.Carry = !f.Carry
	case 0xf8:
		f.Carry = false
	case 0xf9:
		f.Carry = true
	case 0xfa:
		f.Interrupt = false
	case 0xfb:
		f.Interrupt = true
	case 0xfc:
		f.Direction = false
	case 0xfd:
		f.Direction = true
	}
}

// cond evaluates a Jcc condition code against the flags.
//
// https://www.felixcloutier.com/x86/jcc
func (e *Executor) cond(cc byte) bool {
	f := e.state.Flags
	var v bool
	switch cc >> 1 {
	case 0:
		v = f.Overflow
	case 1:
		v = f.Carry
	case 2:
		v = f.Zero
	case 3:
		v = f.Carry || f.Zero
	case 4:
		v = f.Sign
	case 5:
		v = f.Parity
	case 6:
		v = f.Sign != f.Overflow
	case 7:
		v = (f.Sign != f.Overflow) || f.Zero
	}
	if cc&1 != 0 {
		return !v
	}
	return v
}

// operand plumbing

// opBits is the operand width in bits: byte ops are 8, word ops 16, or 32
// under an operand-size prefix.
func opBits(p *ParsedInstruction) int {
	switch {
	case !p.Def.Word:
		return 8
	case p.OpSize32:
		return 32
	}
	return 16
}

func (e *Executor) regRead(i byte, bits int) uint32 {
	switch bits {
	case 8:
		return uint32(e.state.Reg8(i))
	case 16:
		return uint32(e.state.Reg16(i))
	}
	return e.state.Reg32(i)
}

func (e *Executor) regWrite(i byte, bits int, v uint32) {
	switch bits {
	case 8:
		e.state.SetReg8(i, byte(v))
	case 16:
		e.state.SetReg16(i, uint16(v))
	default:
		e.state.SetReg32(i, v)
	}
}

// readMem composes a value byte by byte through Plus so a word at ds:ffff
// wraps to ds:0000 for its high byte.
func (e *Executor) readMem(a mem.SegmentedAddress, bits int) uint32 {
	switch bits {
	case 8:
		return uint32(e.bus.ReadSeg(a))
	case 16:
		return uint32(e.bus.ReadSeg16(a))
	}
	return mask.Dword(e.bus.ReadSeg16(a.Plus(2)), e.bus.ReadSeg16(a))
}

func (e *Executor) writeMem(a mem.SegmentedAddress, bits int, v uint32) {
	for i := range uint16(bits / 8) {
		e.bus.WriteSeg(a.Plus(i), byte(v>>(8*i)))
	}
}

func (e *Executor) readRM(p *ParsedInstruction, bits int) uint32 {
	if addr, ok := p.Mod.MemAddress(e.state, e.bus, p.SegOverride); ok {
		return e.readMem(addr, bits)
	}
	return e.regRead(p.Mod.RM, bits)
}

func (e *Executor) writeRM(p *ParsedInstruction, bits int, v uint32) {
	if addr, ok := p.Mod.MemAddress(e.state, e.bus, p.SegOverride); ok {
		e.writeMem(addr, bits, v)
		return
	}
	e.regWrite(p.Mod.RM, bits, v)
}

// immVal returns the live immediate, sign-extending the 83h byte form to
// operand width.
func (e *Executor) immVal(p *ParsedInstruction, bits int) uint32 {
	switch {
	case p.Imm8 != nil:
		v := uint32(p.Imm8.Load(e.bus))
		if p.Def.SignExt {
			v = uint32(int32(int8(v))) & widthMask(bits)
		}
		return v
	case p.Imm16 != nil:
		return uint32(p.Imm16.Load(e.bus))
	case p.Imm32 != nil:
		return p.Imm32.Load(e.bus)
	}
	return 0
}

func (e *Executor) relVal(p *ParsedInstruction) int32 {
	switch {
	case p.Rel8 != nil:
		return int32(p.Rel8.Load(e.bus))
	case p.Rel16 != nil:
		return int32(p.Rel16.Load(e.bus))
	case p.Rel32 != nil:
		return p.Rel32.Load(e.bus)
	}
	return 0
}

func (e *Executor) moffsSeg(p *ParsedInstruction) byte {
	if p.SegOverride >= 0 {
		return byte(p.SegOverride)
	}
	return SegDS
}

// stack helpers; the stack always lives at ss:sp and pushes downward

func (e *Executor) push16(v uint16) {
	sp := e.state.Reg16(RegSP) - 2
	e.state.SetReg16(RegSP, sp)
	e.writeMem(mem.SegmentedAddress{Segment: e.state.SS, Offset: sp}, 16, uint32(v))
}

func (e *Executor) pop16() uint16 {
	sp := e.state.Reg16(RegSP)
	v := uint16(e.readMem(mem.SegmentedAddress{Segment: e.state.SS, Offset: sp}, 16))
	e.state.SetReg16(RegSP, sp+2)
	return v
}
