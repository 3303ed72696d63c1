package cpu

import (
	"go86/mask"
	"go86/mem"
)

// A Field is one primitive piece of a decoded instruction: a prefix byte, the
// opcode, a ModR/M byte, a displacement, an immediate. Fields come in
// different value types but are handled uniformly by the signature and
// reduction machinery, which only ever needs the byte footprint.
//
// Final fields are identity: change one of their bytes in memory and you
// have a different instruction. Non-final fields are data: the instruction
// stays the same, but once UseValue is cleared the executor must re-read the
// live bytes instead of trusting the decode-time copy.
type Field interface {
	// Index is the ordinal of this field within its instruction.
	Index() uint8
	// ByteLength is the number of bytes the field occupies.
	ByteLength() uint8
	// LinearAddress is the absolute address of the field's first byte.
	LinearAddress() uint32
	Final() bool
	UseValue() bool
	ClearUseValue()
	// ByteAt returns the byte recorded at decode time, or ok=false once
	// UseValue has been cleared and the recorded bytes are no longer
	// authoritative.
	ByteAt(i int) (byte, bool)
	// SameValueAndPosition reports whether the other field covers the same
	// bytes at the same place.
	SameValueAndPosition(o Field) bool
}

// An InstructionField carries a typed value of T plus the raw bytes it was
// decoded from.
type InstructionField[T comparable] struct {
	index    uint8
	length   uint8
	addr     mem.SegmentedAddress
	value    T
	raw      []byte
	final    bool
	useValue bool
	dec      func(*mem.Bus, mem.SegmentedAddress) T
}

func (f *InstructionField[T]) Index() uint8          { return f.index }
func (f *InstructionField[T]) ByteLength() uint8     { return f.length }
func (f *InstructionField[T]) LinearAddress() uint32 { return f.addr.Linear() }
func (f *InstructionField[T]) Final() bool           { return f.final }
func (f *InstructionField[T]) UseValue() bool        { return f.useValue }
func (f *InstructionField[T]) ClearUseValue()        { f.useValue = false }

func (f *InstructionField[T]) ByteAt(i int) (byte, bool) {
	if i < 0 || i >= len(f.raw) {
		return 0, false
	}
	return f.raw[i], f.useValue || f.final
}

func (f *InstructionField[T]) SameValueAndPosition(o Field) bool {
	if f.LinearAddress() != o.LinearAddress() || f.ByteLength() != o.ByteLength() {
		return false
	}
	for i := range int(f.length) {
		a, aok := f.ByteAt(i)
		b, bok := o.ByteAt(i)
		if !aok || !bok || a != b {
			return false
		}
	}
	return true
}

// Parsed returns the decode-time value, regardless of UseValue. Only the
// parser and tests should want this.
func (f *InstructionField[T]) Parsed() T { return f.value }

// Load returns the value to execute with: the cached one while UseValue
// holds, otherwise a fresh read of the live bytes. This is what keeps a
// reduced instruction correct across identical-shape self-modification.
func (f *InstructionField[T]) Load(bus *mem.Bus) T {
	if f.useValue {
		return f.value
	}
	return f.dec(bus, f.addr)
}

// A FieldReader is a cursor over the Bus at a moving instruction pointer.
// The linear address is recomputed from the segmented base for every read,
// so the offset arithmetic stays in 16-bit wraparound semantics; an
// instruction decoded at ffff:fffe reads its tail from offset 0000.
type FieldReader struct {
	bus  *mem.Bus
	base mem.SegmentedAddress
	off  uint16 // bytes consumed so far
	idx  uint8  // ordinal of the next field
}

func NewFieldReader(bus *mem.Bus, addr mem.SegmentedAddress) *FieldReader {
	return &FieldReader{bus: bus, base: addr}
}

// Position is the number of bytes consumed since the seed address.
func (r *FieldReader) Position() uint16 { return r.off }

// Addr is the segmented address of the next unread byte.
func (r *FieldReader) Addr() mem.SegmentedAddress { return r.base.Plus(r.off) }

// PeekByte reads the byte at the cursor without consuming it.
func (r *FieldReader) PeekByte() byte {
	return r.bus.ReadU8(r.Addr().Linear())
}

// PeekUInt8 reads a field at the cursor without consuming it; a following
// UInt8 yields the same field again.
func (r *FieldReader) PeekUInt8(final bool) *InstructionField[uint8] {
	f := r.UInt8(final)
	r.Recede(1)
	r.idx--
	return f
}

// Advance moves the cursor forward by n bytes without producing a field.
func (r *FieldReader) Advance(n uint16) { r.off += n }

// Recede moves the cursor back by n bytes.
func (r *FieldReader) Recede(n uint16) { r.off -= n }

func read[T comparable](r *FieldReader, n uint8, final bool, dec func(*mem.Bus, mem.SegmentedAddress) T) *InstructionField[T] {
	addr := r.Addr()
	raw := make([]byte, n)
	for i := range raw {
		raw[i] = r.bus.ReadU8(addr.Plus(uint16(i)).Linear())
	}
	f := &InstructionField[T]{
		index:    r.idx,
		length:   n,
		addr:     addr,
		value:    dec(r.bus, addr),
		raw:      raw,
		final:    final,
		useValue: true,
		dec:      dec,
	}
	r.idx++
	r.off += uint16(n)
	return f
}

func (r *FieldReader) UInt8(final bool) *InstructionField[uint8] {
	return read(r, 1, final, decU8)
}

func (r *FieldReader) Int8(final bool) *InstructionField[int8] {
	return read(r, 1, final, decI8)
}

func (r *FieldReader) UInt16(final bool) *InstructionField[uint16] {
	return read(r, 2, final, decU16)
}

func (r *FieldReader) Int16(final bool) *InstructionField[int16] {
	return read(r, 2, final, decI16)
}

// UInt16BE reads a big-endian word; some BIOS data structures store words
// high byte first.
func (r *FieldReader) UInt16BE(final bool) *InstructionField[uint16] {
	return read(r, 2, final, decU16BE)
}

func (r *FieldReader) UInt32(final bool) *InstructionField[uint32] {
	return read(r, 4, final, decU32)
}

func (r *FieldReader) Int32(final bool) *InstructionField[int32] {
	return read(r, 4, final, decI32)
}

// Segmented reads an offset word followed by a segment word, the wire layout
// of a far pointer.
func (r *FieldReader) Segmented(final bool) *InstructionField[mem.SegmentedAddress] {
	return read(r, 4, final, decSegmented)
}

// decoders; each recomputes from the live bus so Load can re-read

func busByte(b *mem.Bus, a mem.SegmentedAddress, i uint16) byte {
	return b.ReadU8(a.Plus(i).Linear())
}

func decU8(b *mem.Bus, a mem.SegmentedAddress) uint8 { return busByte(b, a, 0) }

func decI8(b *mem.Bus, a mem.SegmentedAddress) int8 { return int8(busByte(b, a, 0)) }

func decU16(b *mem.Bus, a mem.SegmentedAddress) uint16 {
	return mask.Word(busByte(b, a, 1), busByte(b, a, 0))
}

func decI16(b *mem.Bus, a mem.SegmentedAddress) int16 { return int16(decU16(b, a)) }

func decU16BE(b *mem.Bus, a mem.SegmentedAddress) uint16 {
	return mask.Word(busByte(b, a, 0), busByte(b, a, 1))
}

func decU32(b *mem.Bus, a mem.SegmentedAddress) uint32 {
	return mask.Dword(decU16(b, a.Plus(2)), decU16(b, a))
}

func decI32(b *mem.Bus, a mem.SegmentedAddress) int32 { return int32(decU32(b, a)) }

func decSegmented(b *mem.Bus, a mem.SegmentedAddress) mem.SegmentedAddress {
	return mem.SegmentedAddress{
		Offset:  decU16(b, a),
		Segment: decU16(b, a.Plus(2)),
	}
}
