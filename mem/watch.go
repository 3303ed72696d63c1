package mem

// A WriteFunc is called just before a watched byte is overwritten. old is
// what memory holds right now, data is what is about to be stored. Callbacks
// run on the writing goroutine; they may read the Bus and may Close
// watchpoints, but must not write memory (that would re-enter the funnel).
type WriteFunc func(linear uint32, old, data byte)

// A Watchpoint covers a set of linear bytes and fires on every write to any
// of them. One range watchpoint per instruction footprint is the intended
// grain; byte-level filtering (silent stores, wildcard positions) happens
// inside the callback.
type Watchpoint struct {
	bus    *Bus
	addrs  []uint32
	fn     WriteFunc
	closed bool
}

func (b *Bus) watch(addrs []uint32, fn WriteFunc) *Watchpoint {
	w := &Watchpoint{bus: b, addrs: addrs, fn: fn}
	for _, a := range addrs {
		b.watches[a] = append(b.watches[a], w)
	}
	return w
}

// Watch installs a write-watchpoint over the linear range
// [start, start+length).
func (b *Bus) Watch(start, length uint32, fn WriteFunc) *Watchpoint {
	addrs := make([]uint32, length)
	for i := range addrs {
		addrs[i] = start + uint32(i)
	}
	return b.watch(addrs, fn)
}

// WatchSeg installs a write-watchpoint over length bytes starting at a
// segmented address, honouring the 16-bit offset wrap; a footprint that runs
// past offset ffff continues at offset 0000 of the same segment, which is
// not linear-contiguous.
func (b *Bus) WatchSeg(addr SegmentedAddress, length uint16, fn WriteFunc) *Watchpoint {
	addrs := make([]uint32, length)
	for i := range addrs {
		addrs[i] = addr.Plus(uint16(i)).Linear()
	}
	return b.watch(addrs, fn)
}

// Close disarms the watchpoint. Safe to call from inside its own callback,
// and safe to call twice.
func (w *Watchpoint) Close() {
	if w.closed {
		return
	}
	w.closed = true
	for _, a := range w.addrs {
		ws := w.bus.watches[a]
		for i, x := range ws {
			if x == w {
				w.bus.watches[a] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		if len(w.bus.watches[a]) == 0 {
			delete(w.bus.watches, a)
		}
	}
}
