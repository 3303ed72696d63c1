package cpu

import (
	"go86/mask"
	"go86/mem"
)

// A ModRM is the decoded mod/reg/rm byte of an instruction, plus whatever
// the byte demanded next: an optional SIB byte and an optional displacement.
// The ModR/M and SIB bytes are identity (final); displacements are data.
//
// http://ref.x86asm.net/coder32.html#modrm_byte_16
type ModRM struct {
	Field *InstructionField[uint8]

	Mod byte // 0-2 memory forms, 3 register direct
	Reg byte // register operand, or the /digit of a group opcode
	RM  byte

	Addr32 bool // decoded under a 67h address-size prefix
	Sib    *Sib

	Disp8  *InstructionField[int8]
	Disp16 *InstructionField[uint16]
	Disp32 *InstructionField[uint32]

	// DefaultSeg is the segment register the effective address uses when no
	// override prefix is present: SS for the BP/EBP forms and the ESP-based
	// SIB forms, DS otherwise.
	DefaultSeg byte
}

// A Sib is the scale-index-base byte of a 32-bit addressing form.
type Sib struct {
	Field *InstructionField[uint8]

	Scale byte
	Index byte // 4 = no index
	Base  byte
}

// parseModRM reads the ModR/M byte and its dependent fields at the reader
// cursor, appending every field to inst.
func parseModRM(r *FieldReader, inst *ParsedInstruction) (*ModRM, error) {
	f := r.UInt8(true)
	inst.addField(f)

	m := &ModRM{
		Field:      f,
		Mod:        mask.Mod(f.Parsed()),
		Reg:        mask.Reg(f.Parsed()),
		RM:         mask.RM(f.Parsed()),
		Addr32:     inst.AddrSize32,
		DefaultSeg: SegDS,
	}

	if m.Addr32 {
		return m, parseModRM32(r, inst, m)
	}

	// 16-bit forms: displacement size follows mod, except that mod=0 rm=6
	// trades the BP base for a bare disp16
	switch m.Mod {
	case 0:
		if m.RM == 6 {
			m.Disp16 = r.UInt16(false)
			inst.addField(m.Disp16)
		}
	case 1:
		m.Disp8 = r.Int8(false)
		inst.addField(m.Disp8)
	case 2:
		m.Disp16 = r.UInt16(false)
		inst.addField(m.Disp16)
	}

	// BP-based forms default to the stack segment
	if m.Mod != 3 {
		switch {
		case m.RM == 2 || m.RM == 3: // bp+si, bp+di
			m.DefaultSeg = SegSS
		case m.RM == 6 && m.Mod != 0: // bp+disp
			m.DefaultSeg = SegSS
		}
	}
	return m, nil
}

func parseModRM32(r *FieldReader, inst *ParsedInstruction, m *ModRM) error {
	if m.Mod != 3 && m.RM == 4 {
		sf := r.UInt8(true)
		inst.addField(sf)
		m.Sib = &Sib{
			Field: sf,
			Scale: mask.Scale(sf.Parsed()),
			Index: mask.Index(sf.Parsed()),
			Base:  mask.Base(sf.Parsed()),
		}
	}

	switch m.Mod {
	case 0:
		if m.RM == 5 || (m.Sib != nil && m.Sib.Base == 5) {
			m.Disp32 = r.UInt32(false)
			inst.addField(m.Disp32)
		}
	case 1:
		m.Disp8 = r.Int8(false)
		inst.addField(m.Disp8)
	case 2:
		m.Disp32 = r.UInt32(false)
		inst.addField(m.Disp32)
	}

	if m.Mod != 3 {
		switch {
		case m.RM == 5 && m.Mod != 0: // ebp+disp
			m.DefaultSeg = SegSS
		case m.Sib != nil && (m.Sib.Base == 4 || (m.Sib.Base == 5 && m.Mod != 0)):
			m.DefaultSeg = SegSS
		}
	}
	return nil
}

// disp returns the current displacement value, re-reading live memory when
// the field has been reduced.
func (m *ModRM) disp(bus *mem.Bus) uint32 {
	switch {
	case m.Disp8 != nil:
		return uint32(int32(m.Disp8.Load(bus)))
	case m.Disp16 != nil:
		return uint32(m.Disp16.Load(bus))
	case m.Disp32 != nil:
		return m.Disp32.Load(bus)
	}
	return 0
}

// MemAddress computes the effective memory operand address. ok is false for
// register-direct forms (mod=3). segOverride is a segment register index or
// -1 for none.
func (m *ModRM) MemAddress(s *State, bus *mem.Bus, segOverride int8) (mem.SegmentedAddress, bool) {
	if m.Mod == 3 {
		return mem.SegmentedAddress{}, false
	}
	seg := m.DefaultSeg
	if segOverride >= 0 {
		seg = byte(segOverride)
	}

	var off uint32
	if m.Addr32 {
		off = m.offset32(s, bus)
	} else {
		off = uint32(m.offset16(s, bus))
	}
	return mem.SegmentedAddress{Segment: s.Seg(seg), Offset: uint16(off)}, true
}

// offset16 evaluates one of the eight canonical 16-bit effective-address
// formulas. Everything is uint16 arithmetic, so base+index+disp wraps at
// 64 kB the way the chip does it.
func (m *ModRM) offset16(s *State, bus *mem.Bus) uint16 {
	d := uint16(m.disp(bus))
	switch m.RM {
	case 0:
		return s.Reg16(RegBX) + s.Reg16(RegSI) + d
	case 1:
		return s.Reg16(RegBX) + s.Reg16(RegDI) + d
	case 2:
		return s.Reg16(RegBP) + s.Reg16(RegSI) + d
	case 3:
		return s.Reg16(RegBP) + s.Reg16(RegDI) + d
	case 4:
		return s.Reg16(RegSI) + d
	case 5:
		return s.Reg16(RegDI) + d
	case 6:
		if m.Mod == 0 {
			return d // bare disp16
		}
		return s.Reg16(RegBP) + d
	case 7:
		return s.Reg16(RegBX) + d
	}
	panic("rm out of range")
}

func (m *ModRM) offset32(s *State, bus *mem.Bus) uint32 {
	d := m.disp(bus)
	if m.Sib != nil {
		var base uint32
		if !(m.Sib.Base == 5 && m.Mod == 0) {
			base = s.Reg32(m.Sib.Base)
		}
		var index uint32
		if m.Sib.Index != 4 {
			index = s.Reg32(m.Sib.Index) << m.Sib.Scale
		}
		return base + index + d
	}
	if m.RM == 5 && m.Mod == 0 {
		return d // bare disp32
	}
	return s.Reg32(m.RM) + d
}
