package cpu

// An Opcode is the dispatch entry for one opcode byte: the family tag the
// executor switches on, the operand layout the parser reads, and the small
// facts (width, direction, encoded register) that the leaf encodings pack
// into the opcode byte itself.
//
// Generated against http://ref.x86asm.net/coder32.html and the 8086 half of
// the one-byte map; two-byte 0f opcodes are post-8086 and not dispatched.
type Opcode struct {
	Name   string
	Family Family

	Word    bool // 16-bit operand (32 under a 66h prefix); byte otherwise
	ToReg   bool // direction bit: reg <- r/m (or acc <- mem for moffs)
	SignExt bool // 83h: the imm8 is sign-extended to operand width

	Alu    byte // operation index for the arithmetic families
	Cc     byte // condition code for Jcc
	RegIdx byte // register encoded in the low bits of the opcode byte

	Parse parseFunc
}

type parseFunc func(r *FieldReader, inst *ParsedInstruction) error

// aluNames indexes the eight classic ALU operations the way the opcode map
// does: bits 5-3 of the opcode byte, and the reg field of Grp1.
var aluNames = [8]string{"ADD", "OR", "ADC", "SBB", "AND", "SUB", "XOR", "CMP"}

const (
	AluAdd = iota
	AluOr
	AluAdc
	AluSbb
	AluAnd
	AluSub
	AluXor
	AluCmp
)

var ccNames = [16]string{
	"JO", "JNO", "JB", "JNB", "JZ", "JNZ", "JBE", "JA",
	"JS", "JNS", "JP", "JNP", "JL", "JGE", "JLE", "JG",
}

// Opcodes maps an opcode byte to its dispatch entry. Bytes with no entry
// are invalid opcodes as far as this core is concerned; prefix bytes never
// reach the table because the parser consumes them first.
var Opcodes = map[byte]Opcode{
	0x80: {Name: "GRP1", Family: FamGrp1, Parse: parseRMImm},
	0x81: {Name: "GRP1", Family: FamGrp1, Word: true, Parse: parseRMImm},
	0x82: {Name: "GRP1", Family: FamGrp1, Parse: parseRMImm}, // alias of 80
	0x83: {Name: "GRP1", Family: FamGrp1, Word: true, SignExt: true, Parse: parseRMImm},

	0x88: {Name: "MOV", Family: FamMovRMReg, Parse: parseRM},
	0x89: {Name: "MOV", Family: FamMovRMReg, Word: true, Parse: parseRM},
	0x8a: {Name: "MOV", Family: FamMovRMReg, ToReg: true, Parse: parseRM},
	0x8b: {Name: "MOV", Family: FamMovRMReg, Word: true, ToReg: true, Parse: parseRM},

	0x90: {Name: "NOP", Family: FamNop, Parse: parseNone},

	0x9c: {Name: "PUSHF", Family: FamPushf, Parse: parseNone},
	0x9d: {Name: "POPF", Family: FamPopf, Parse: parseNone},

	0xa0: {Name: "MOV", Family: FamMovMoffs, ToReg: true, Parse: parseMoffs},
	0xa1: {Name: "MOV", Family: FamMovMoffs, Word: true, ToReg: true, Parse: parseMoffs},
	0xa2: {Name: "MOV", Family: FamMovMoffs, Parse: parseMoffs},
	0xa3: {Name: "MOV", Family: FamMovMoffs, Word: true, Parse: parseMoffs},

	0xc2: {Name: "RET", Family: FamRetNear, Word: true, Parse: parseImm16},
	0xc3: {Name: "RET", Family: FamRetNear, Parse: parseNone},

	0xc6: {Name: "MOV", Family: FamMovRMImm, Parse: parseRMImm},
	0xc7: {Name: "MOV", Family: FamMovRMImm, Word: true, Parse: parseRMImm},

	0xe8: {Name: "CALL", Family: FamCallNear, Parse: parseRel16},
	0xe9: {Name: "JMP", Family: FamJmpNear, Parse: parseRel16},
	0xea: {Name: "JMP", Family: FamJmpFar, Parse: parseFarPtr},
	0xeb: {Name: "JMP", Family: FamJmpShort, Parse: parseRel8},

	0xf4: {Name: "HLT", Family: FamHlt, Parse: parseNone},
	0xf5: {Name: "CMC", Family: FamFlagOp, Parse: parseNone},
	0xf8: {Name: "CLC", Family: FamFlagOp, Parse: parseNone},
	0xf9: {Name: "STC", Family: FamFlagOp, Parse: parseNone},
	0xfa: {Name: "CLI", Family: FamFlagOp, Parse: parseNone},
	0xfb: {Name: "STI", Family: FamFlagOp, Parse: parseNone},
	0xfc: {Name: "CLD", Family: FamFlagOp, Parse: parseNone},
	0xfd: {Name: "STD", Family: FamFlagOp, Parse: parseNone},

	0xfe: {Name: "GRP4", Family: FamGrp4, Parse: parseGrp4},
	0xff: {Name: "GRP5", Family: FamGrp5, Word: true, Parse: parseGrp5},
}

func init() {
	// arithmetic 00-3d: eight operations, six encodings each, on a stride
	// of 8. The +6/+7 slots in each row are push/pop-segment and the BCD
	// adjusts, and rows 4-7 end in the segment-override prefixes 26/2e/36/3e
	// -- none of which belong in the table, so the stride skips them.
	for op := byte(0); op < 8; op++ {
		base := op << 3
		name := aluNames[op]
		Opcodes[base+0] = Opcode{Name: name, Family: FamArithRMReg, Alu: op, Parse: parseRM}
		Opcodes[base+1] = Opcode{Name: name, Family: FamArithRMReg, Word: true, Alu: op, Parse: parseRM}
		Opcodes[base+2] = Opcode{Name: name, Family: FamArithRMReg, ToReg: true, Alu: op, Parse: parseRM}
		Opcodes[base+3] = Opcode{Name: name, Family: FamArithRMReg, Word: true, ToReg: true, Alu: op, Parse: parseRM}
		Opcodes[base+4] = Opcode{Name: name, Family: FamArithAccImm, Alu: op, Parse: parseImm}
		Opcodes[base+5] = Opcode{Name: name, Family: FamArithAccImm, Word: true, Alu: op, Parse: parseImm}
	}

	// 40-5f: inc/dec/push/pop with the register in the low three bits
	for i := byte(0); i < 8; i++ {
		Opcodes[0x40+i] = Opcode{Name: "INC", Family: FamIncReg, Word: true, RegIdx: i, Parse: parseNone}
		Opcodes[0x48+i] = Opcode{Name: "DEC", Family: FamDecReg, Word: true, RegIdx: i, Parse: parseNone}
		Opcodes[0x50+i] = Opcode{Name: "PUSH", Family: FamPushReg, Word: true, RegIdx: i, Parse: parseNone}
		Opcodes[0x58+i] = Opcode{Name: "POP", Family: FamPopReg, Word: true, RegIdx: i, Parse: parseNone}
	}

	// 70-7f: the sixteen conditional short jumps
	for i := byte(0); i < 16; i++ {
		Opcodes[0x70+i] = Opcode{Name: ccNames[i], Family: FamJcc, Cc: i, Parse: parseRel8}
	}

	// b0-bf: mov reg, imm; b0-b7 byte registers, b8-bf word registers
	for i := byte(0); i < 8; i++ {
		Opcodes[0xb0+i] = Opcode{Name: "MOV", Family: FamMovRegImm, RegIdx: i, Parse: parseImm}
		Opcodes[0xb8+i] = Opcode{Name: "MOV", Family: FamMovRegImm, Word: true, RegIdx: i, Parse: parseImm}
	}
}

// parse leaves

func parseNone(*FieldReader, *ParsedInstruction) error { return nil }

func parseRM(r *FieldReader, inst *ParsedInstruction) error {
	m, err := parseModRM(r, inst)
	inst.Mod = m
	return err
}

// parseImm reads an immediate whose width follows the opcode's Word bit and
// the operand-size prefix.
func parseImm(r *FieldReader, inst *ParsedInstruction) error {
	switch {
	case !inst.Def.Word:
		inst.Imm8 = r.UInt8(false)
		inst.addField(inst.Imm8)
	case inst.OpSize32:
		inst.Imm32 = r.UInt32(false)
		inst.addField(inst.Imm32)
	default:
		inst.Imm16 = r.UInt16(false)
		inst.addField(inst.Imm16)
	}
	return nil
}

func parseRMImm(r *FieldReader, inst *ParsedInstruction) error {
	if err := parseRM(r, inst); err != nil {
		return err
	}
	if inst.Def.SignExt {
		// 83h: byte immediate, widened at execution
		inst.Imm8 = r.UInt8(false)
		inst.addField(inst.Imm8)
		return nil
	}
	return parseImm(r, inst)
}

// parseImm16 reads a 16-bit immediate regardless of prefixes; the RET pop
// count is a word even in 32-bit operand mode.
func parseImm16(r *FieldReader, inst *ParsedInstruction) error {
	inst.Imm16 = r.UInt16(false)
	inst.addField(inst.Imm16)
	return nil
}

func parseRel8(r *FieldReader, inst *ParsedInstruction) error {
	inst.Rel8 = r.Int8(false)
	inst.addField(inst.Rel8)
	return nil
}

func parseRel16(r *FieldReader, inst *ParsedInstruction) error {
	if inst.OpSize32 {
		inst.Rel32 = r.Int32(false)
		inst.addField(inst.Rel32)
		return nil
	}
	inst.Rel16 = r.Int16(false)
	inst.addField(inst.Rel16)
	return nil
}

func parseFarPtr(r *FieldReader, inst *ParsedInstruction) error {
	inst.Far = r.Segmented(false)
	inst.addField(inst.Far)
	return nil
}

// parseMoffs reads the direct memory offset of the a0-a3 accumulator moves.
// Real-mode moffs is a plain 16-bit offset into the (overridable) data
// segment.
func parseMoffs(r *FieldReader, inst *ParsedInstruction) error {
	inst.Moffs = r.UInt16(false)
	inst.addField(inst.Moffs)
	return nil
}

func parseGrp4(r *FieldReader, inst *ParsedInstruction) error {
	if err := parseRM(r, inst); err != nil {
		return err
	}
	if inst.Mod.Reg > 1 {
		return InvalidModeError{Addr: inst.addr, ModRM: inst.Mod.Field.Parsed(), Reason: "fe /2../7 undefined"}
	}
	return nil
}

func parseGrp5(r *FieldReader, inst *ParsedInstruction) error {
	if err := parseRM(r, inst); err != nil {
		return err
	}
	m := inst.Mod
	if m.Reg == 7 {
		return InvalidModeError{Addr: inst.addr, ModRM: m.Field.Parsed(), Reason: "ff /7 undefined"}
	}
	// the far indirect forms dereference a memory pointer; a register
	// cannot hold one
	if (m.Reg == 3 || m.Reg == 5) && m.Mod == 3 {
		return InvalidModeError{Addr: inst.addr, ModRM: m.Field.Parsed(), Reason: "far indirect requires a memory operand"}
	}
	return nil
}
