package mem

import "fmt"

// A SegmentedAddress is the real-mode segment:offset pair. The same linear
// byte can be named by up to 4096 different pairs (e.g. 1000:0010 and
// 1001:0000), so two different pairs may still name the same byte. Graph
// edges are keyed by Linear(); the instruction caches and selectors key on
// the pair itself.
//
// https://wiki.osdev.org/Segmentation
// https://www.stanislavs.org/helppc/real_mode_addressing.html
type SegmentedAddress struct {
	Segment uint16
	Offset  uint16
}

// Linear computes segment*16 + offset. The result can exceed 20 bits (the
// HMA, up to ffff:ffff = 0x10ffef); the Bus is sized to absorb that rather
// than emulating the A20 gate.
func (a SegmentedAddress) Linear() uint32 {
	return uint32(a.Segment)<<4 + uint32(a.Offset)
}

// Plus returns the address n bytes further into the same segment. The offset
// wraps at 64 kB, as on the real chip; the segment is never touched.
func (a SegmentedAddress) Plus(n uint16) SegmentedAddress {
	return SegmentedAddress{Segment: a.Segment, Offset: a.Offset + n}
}

// Less orders addresses by their linear value.
func (a SegmentedAddress) Less(b SegmentedAddress) bool {
	return a.Linear() < b.Linear()
}

func (a SegmentedAddress) String() string {
	return fmt.Sprintf("%04x:%04x", a.Segment, a.Offset)
}
