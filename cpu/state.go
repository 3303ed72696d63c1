// Package cpu implements a control-flow-graph core for the Intel 8086 family
// in real mode, as used by DOS programs. Instructions are decoded once,
// cached by the byte pattern they were decoded from, and kept coherent with
// guest memory through write-watchpoints, so that self-modifying code is
// observed rather than assumed away.

package cpu

import (
	"go86/mem"
)

// register indices as encoded in the reg and r/m fields of a ModR/M byte
//
// https://wiki.osdev.org/X86-64_Instruction_Encoding#Registers
const (
	RegAX = iota // AL when the operand is a byte
	RegCX        // CL
	RegDX        // DL
	RegBX        // BL
	RegSP        // AH
	RegBP        // CH
	RegSI        // DH
	RegDI        // BH
)

// segment register indices as encoded in segment-override prefixes and
// far-pointer loads
const (
	SegES = iota
	SegCS
	SegSS
	SegDS
	SegFS
	SegGS
)

// The State holds the registers and flags of the guest CPU. It has no memory
// of its own; everything else lives behind the Bus.
//
// The general registers are backed by their full 32-bit form, with 16- and
// 8-bit views carved out by the accessors, which is how the chip itself
// aliases AX into EAX and AL/AH into AX.
type State struct {
	EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI uint32

	ES, CS, SS, DS, FS, GS uint16

	IP uint16

	// Flags is the guest FLAGS register, one bool per defined bit.
	//
	// 15                              0
	//  . . . . O D I T S Z . A . P . C
	Flags struct {
		Carry     bool // bit 0
		Parity    bool // bit 2; parity of the low byte of a result
		AuxCarry  bool // bit 4; carry out of the low nibble, for BCD
		Zero      bool // bit 6
		Sign      bool // bit 7
		Trap      bool // bit 8
		Interrupt bool // bit 9
		Direction bool // bit 10; string ops walk down when set
		Overflow  bool // bit 11
	}
}

// IPSegmented returns the instruction pointer as a CS:IP pair, the identity
// anchor used by the instruction caches.
func (s *State) IPSegmented() mem.SegmentedAddress {
	return mem.SegmentedAddress{Segment: s.CS, Offset: s.IP}
}

func (s *State) gpr(i byte) *uint32 {
	switch i {
	case RegAX:
		return &s.EAX
	case RegCX:
		return &s.ECX
	case RegDX:
		return &s.EDX
	case RegBX:
		return &s.EBX
	case RegSP:
		return &s.ESP
	case RegBP:
		return &s.EBP
	case RegSI:
		return &s.ESI
	case RegDI:
		return &s.EDI
	}
	panic("register index out of range")
}

// Reg16 reads a 16-bit register by its r/m encoding index.
func (s *State) Reg16(i byte) uint16 { return uint16(*s.gpr(i)) }

func (s *State) SetReg16(i byte, v uint16) {
	r := s.gpr(i)
	*r = *r&0xffff0000 | uint32(v)
}

// Reg32 reads a 32-bit register by its r/m encoding index.
func (s *State) Reg32(i byte) uint32 { return *s.gpr(i) }

func (s *State) SetReg32(i byte, v uint32) { *s.gpr(i) = v }

// Reg8 reads an 8-bit register. Indices 0-3 are the low bytes AL CL DL BL,
// indices 4-7 the high bytes AH CH DH BH of the same four registers.
func (s *State) Reg8(i byte) byte {
	if i < 4 {
		return byte(*s.gpr(i))
	}
	return byte(*s.gpr(i-4) >> 8)
}

func (s *State) SetReg8(i byte, v byte) {
	if i < 4 {
		r := s.gpr(i)
		*r = *r&^uint32(0xff) | uint32(v)
		return
	}
	r := s.gpr(i - 4)
	*r = *r&^uint32(0xff00) | uint32(v)<<8
}

// Seg reads a segment register by its prefix/encoding index.
func (s *State) Seg(i byte) uint16 {
	switch i {
	case SegES:
		return s.ES
	case SegCS:
		return s.CS
	case SegSS:
		return s.SS
	case SegDS:
		return s.DS
	case SegFS:
		return s.FS
	case SegGS:
		return s.GS
	}
	panic("segment index out of range")
}

func (s *State) SetSeg(i byte, v uint16) {
	switch i {
	case SegES:
		s.ES = v
	case SegCS:
		s.CS = v
	case SegSS:
		s.SS = v
	case SegDS:
		s.DS = v
	case SegFS:
		s.FS = v
	case SegGS:
		s.GS = v
	default:
		panic("segment index out of range")
	}
}

// FlagsWord packs the flag bools into the 16-bit FLAGS layout, with the
// always-one and always-zero bits as the 8086 sets them.
func (s *State) FlagsWord() uint16 {
	w := uint16(0xf002) // bits 12-15 read as 1 on the 8086, bit 1 always 1
	set := func(bit int, on bool) {
		if on {
			w |= 1 << bit
		}
	}
	set(0, s.Flags.Carry)
	set(2, s.Flags.Parity)
	set(4, s.Flags.AuxCarry)
	set(6, s.Flags.Zero)
	set(7, s.Flags.Sign)
	set(8, s.Flags.Trap)
	set(9, s.Flags.Interrupt)
	set(10, s.Flags.Direction)
	set(11, s.Flags.Overflow)
	return w
}

// SetFlagsWord unpacks a 16-bit FLAGS value into the flag bools.
func (s *State) SetFlagsWord(w uint16) {
	s.Flags.Carry = w&(1<<0) != 0
	s.Flags.Parity = w&(1<<2) != 0
	s.Flags.AuxCarry = w&(1<<4) != 0
	s.Flags.Zero = w&(1<<6) != 0
	s.Flags.Sign = w&(1<<7) != 0
	s.Flags.Trap = w&(1<<8) != 0
	s.Flags.Interrupt = w&(1<<9) != 0
	s.Flags.Direction = w&(1<<10) != 0
	s.Flags.Overflow = w&(1<<11) != 0
}
