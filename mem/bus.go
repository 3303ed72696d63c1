package mem

import "go86/mask"

// RamSize covers conventional memory plus the HMA overshoot reachable from
// ffff:ffff. No A20 wrapping; addresses above 1 MiB just land in the spill.
const RamSize = 0x110000

// A Bus is the central object that connects the 'hardware' components
// together: the CPU fetches and stores through it, and so must any other
// agent (DMA-style writers, tests) that touches guest memory. The write path
// is the one funnel everything goes through, because write-watchpoints hang
// off it; a store that bypasses the Bus is invisible to the instruction
// caches and breaks their coherence contract.
//
// All access is linear. Segment arithmetic (16-bit offset wraparound) is the
// caller's business, via SegmentedAddress.
//
// The Bus is single-writer: every mutation must happen on the goroutine that
// runs the dispatch loop, so watchpoint callbacks always fire synchronously
// between instruction steps.
type Bus struct {
	Ram [RamSize]byte

	// per-byte fan-out lists; a range Watchpoint registers itself at every
	// byte it covers
	watches map[uint32][]*Watchpoint
}

func NewBus() *Bus {
	return &Bus{watches: map[uint32][]*Watchpoint{}}
}

// ReadU8 reads one byte at the given linear address.
func (b *Bus) ReadU8(linear uint32) byte { return b.Ram[linear] }

// WriteU8 stores one byte at the given linear address. Watchpoint callbacks
// run before the store and see both the current and the incoming byte;
// silent stores (old == new) are still delivered, filtering is the
// callback's choice.
func (b *Bus) WriteU8(linear uint32, data byte) {
	if ws := b.watches[linear]; len(ws) > 0 {
		// a callback may Close its own watchpoint; walk a copy
		for _, w := range append([]*Watchpoint(nil), ws...) {
			if !w.closed {
				w.fn(linear, b.Ram[linear], data)
			}
		}
	}
	b.Ram[linear] = data
}

// multi-byte accessors compose from the u8 path so that every byte passes
// the watchpoint funnel; x86 is little endian

func (b *Bus) ReadU16(linear uint32) uint16 {
	return mask.Word(b.ReadU8(linear+1), b.ReadU8(linear))
}

func (b *Bus) WriteU16(linear uint32, data uint16) {
	b.WriteU8(linear, byte(data))
	b.WriteU8(linear+1, byte(data>>8))
}

func (b *Bus) ReadU32(linear uint32) uint32 {
	return mask.Dword(b.ReadU16(linear+2), b.ReadU16(linear))
}

func (b *Bus) WriteU32(linear uint32, data uint32) {
	b.WriteU16(linear, uint16(data))
	b.WriteU16(linear+2, uint16(data>>16))
}

// ReadSeg reads one byte at seg:off.
func (b *Bus) ReadSeg(addr SegmentedAddress) byte {
	return b.ReadU8(addr.Linear())
}

// WriteSeg is the segmented counterpart of WriteU8.
func (b *Bus) WriteSeg(addr SegmentedAddress, data byte) {
	b.WriteU8(addr.Linear(), data)
}

// ReadSeg16 reads a word at seg:off, honouring the 16-bit offset wrap. A
// word at ds:ffff takes its high byte from ds:0000, not from the next
// segment.
func (b *Bus) ReadSeg16(addr SegmentedAddress) uint16 {
	return mask.Word(b.ReadU8(addr.Plus(1).Linear()), b.ReadU8(addr.Linear()))
}

// LoadBytes places raw bytes at the given address, bypassing watchpoints.
// Only for initial program load; anything after reset must go through
// WriteU8.
func (b *Bus) LoadBytes(addr SegmentedAddress, data []byte) {
	for i, d := range data {
		b.Ram[addr.Plus(uint16(i)).Linear()] = d
	}
}
