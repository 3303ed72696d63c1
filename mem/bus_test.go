package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentedAddress(t *testing.T) {
	a := SegmentedAddress{Segment: 0x1000, Offset: 0x0010}
	assert.Equal(t, a.Linear(), uint32(0x10010))
	assert.Equal(t, a.String(), "1000:0010")

	// two names for the same byte
	b := SegmentedAddress{Segment: 0x1001, Offset: 0x0000}
	assert.Equal(t, a.Linear(), b.Linear())
	assert.NotEqual(t, a, b)

	// offset wraps inside the segment, the segment stays
	c := SegmentedAddress{Segment: 0x2000, Offset: 0xffff}
	assert.Equal(t, c.Plus(1), SegmentedAddress{Segment: 0x2000, Offset: 0})
	assert.Equal(t, c.Plus(2).Linear(), uint32(0x20001))

	assert.True(t, a.Less(c))
	assert.False(t, c.Less(a))

	// the HMA overshoot fits in the Ram array
	top := SegmentedAddress{Segment: 0xffff, Offset: 0xffff}
	assert.Less(t, top.Linear(), uint32(RamSize))
}

func TestBusAccessors(t *testing.T) {
	b := NewBus()

	b.WriteU16(0x100, 0x1234)
	assert.Equal(t, b.ReadU8(0x100), byte(0x34)) // little endian
	assert.Equal(t, b.ReadU8(0x101), byte(0x12))
	assert.Equal(t, b.ReadU16(0x100), uint16(0x1234))

	b.WriteU32(0x200, 0xdeadbeef)
	assert.Equal(t, b.ReadU32(0x200), uint32(0xdeadbeef))
	assert.Equal(t, b.ReadU16(0x200), uint16(0xbeef))
	assert.Equal(t, b.ReadU16(0x202), uint16(0xdead))
}

func TestWatchpoint(t *testing.T) {
	b := NewBus()
	b.WriteU8(0x500, 0xaa)

	type hit struct {
		linear    uint32
		old, data byte
	}
	var hits []hit
	w := b.Watch(0x500, 2, func(linear uint32, old, data byte) {
		hits = append(hits, hit{linear, old, data})
	})

	b.WriteU8(0x500, 0xbb)
	assert.Equal(t, hits, []hit{{0x500, 0xaa, 0xbb}})
	assert.Equal(t, b.ReadU8(0x500), byte(0xbb)) // callback ran before the store

	// silent stores are still delivered; filtering is the callback's job
	b.WriteU8(0x501, 0x00)
	assert.Len(t, hits, 2)
	assert.Equal(t, hits[1], hit{0x501, 0x00, 0x00})

	// outside the range, nothing
	b.WriteU8(0x502, 0x01)
	assert.Len(t, hits, 2)

	w.Close()
	b.WriteU8(0x500, 0xcc)
	assert.Len(t, hits, 2)

	// double close is fine
	w.Close()
}

func TestWatchpointCloseInsideCallback(t *testing.T) {
	b := NewBus()
	var w *Watchpoint
	fired := 0
	w = b.Watch(0x10, 1, func(uint32, byte, byte) {
		fired++
		w.Close()
	})
	b.WriteU8(0x10, 1)
	b.WriteU8(0x10, 2)
	assert.Equal(t, fired, 1)
}

func TestWatchSegWraps(t *testing.T) {
	b := NewBus()
	addr := SegmentedAddress{Segment: 0x3000, Offset: 0xffff}

	var fired []uint32
	b.WatchSeg(addr, 3, func(linear uint32, _, _ byte) {
		fired = append(fired, linear)
	})

	// the footprint continues at offset 0 of the same segment
	b.WriteU8(addr.Linear(), 1)
	b.WriteU8(SegmentedAddress{Segment: 0x3000, Offset: 0}.Linear(), 2)
	b.WriteU8(SegmentedAddress{Segment: 0x3000, Offset: 1}.Linear(), 3)
	// the next linear byte after the watch start is NOT covered
	b.WriteU8(addr.Linear()+1, 4)

	assert.Equal(t, fired, []uint32{0x3ffff, 0x30000, 0x30001})
}

func TestLoadBytesBypassesWatches(t *testing.T) {
	b := NewBus()
	fired := 0
	b.Watch(0x40000, 4, func(uint32, byte, byte) { fired++ })

	b.LoadBytes(SegmentedAddress{Segment: 0x4000, Offset: 0}, []byte{1, 2, 3, 4})
	assert.Equal(t, fired, 0)
	assert.Equal(t, b.ReadU8(0x40002), byte(3))
}
