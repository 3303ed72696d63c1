package cpu

import (
	"fmt"

	"go86/mem"
)

// An InvalidOpcodeError is raised when the byte at the parse cursor has no
// dispatch entry. It is returned to the caller of Cpu.Tick and Cpu.Run as an
// ordinary error; no #UD exception is raised inside the guest.
type InvalidOpcodeError struct {
	Addr mem.SegmentedAddress
	Byte byte
}

func (e InvalidOpcodeError) Error() string {
	return fmt.Sprintf("invalid opcode %02x at %s", e.Byte, e.Addr)
}

// An InvalidOpcodeBecausePrefixError is raised when a prefix byte sits where
// a full opcode is required, e.g. a prefix run that exhausts the 15-byte
// instruction limit.
type InvalidOpcodeBecausePrefixError struct {
	Addr mem.SegmentedAddress
	Byte byte
}

func (e InvalidOpcodeBecausePrefixError) Error() string {
	return fmt.Sprintf("prefix byte %02x at %s where an opcode is required", e.Byte, e.Addr)
}

// An InvalidModeError is raised for ModR/M encodings the opcode does not
// define, e.g. group opcodes with an undefined reg field.
type InvalidModeError struct {
	Addr   mem.SegmentedAddress
	ModRM  byte
	Reason string
}

func (e InvalidModeError) Error() string {
	return fmt.Sprintf("invalid modrm %02x at %s: %s", e.ModRM, e.Addr, e.Reason)
}

// A CfgDiscrepancyError means the graph suggested a node whose address does
// not match the instruction pointer. The invariants rule this out, so it is
// fatal to dispatch rather than recoverable.
type CfgDiscrepancyError struct {
	Graph  mem.SegmentedAddress
	Memory mem.SegmentedAddress
}

func (e CfgDiscrepancyError) Error() string {
	return fmt.Sprintf("cfg discrepancy: graph suggests %s, memory decodes at %s", e.Graph, e.Memory)
}
