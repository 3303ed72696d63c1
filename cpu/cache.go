package cpu

import (
	"go86/mem"
)

// CurrentInstructions maps an address to the one instruction currently
// valid there. The invariant it maintains: for every entry, the bytes in
// memory match the instruction's signature. The enforcement is a write-
// watchpoint over each entry's byte footprint that evicts on the first real
// mutation -- so a lookup hit never needs to touch memory.
type CurrentInstructions struct {
	bus      *mem.Bus
	registry *ReplacerRegistry

	entries map[mem.SegmentedAddress]*ParsedInstruction
	watches map[*ParsedInstruction]*mem.Watchpoint
}

func NewCurrentInstructions(bus *mem.Bus, registry *ReplacerRegistry) *CurrentInstructions {
	c := &CurrentInstructions{
		bus:      bus,
		registry: registry,
		entries:  map[mem.SegmentedAddress]*ParsedInstruction{},
		watches:  map[*ParsedInstruction]*mem.Watchpoint{},
	}
	registry.Register(c)
	return c
}

// Get is lookup only, no side effects.
func (c *CurrentInstructions) Get(addr mem.SegmentedAddress) *ParsedInstruction {
	return c.entries[addr]
}

// SetAsCurrent installs inst as the instruction at its address and arms the
// watchpoint over its footprint. The callback filters silent stores (same
// byte written) and writes landing on wildcard positions -- those bytes are
// data the executor re-reads anyway -- and evicts on everything else.
func (c *CurrentInstructions) SetAsCurrent(inst *ParsedInstruction) {
	if prev := c.entries[inst.addr]; prev == inst {
		return // already armed
	} else if prev != nil {
		c.Evict(prev)
	}
	c.entries[inst.addr] = inst
	inst.live = true

	c.watches[inst] = c.bus.WatchSeg(inst.addr, uint16(inst.length), func(linear uint32, old, data byte) {
		if old == data {
			return
		}
		for i := range int(inst.length) {
			if inst.addr.Plus(uint16(i)).Linear() == linear {
				if inst.sig.WildAt(i) {
					return
				}
				break
			}
		}
		logger.Logf("evict %s: write %02x over %02x at %05x", inst, data, old, linear)
		c.Evict(inst)
	})
}

// detach removes inst locally: disarm, unmap, mark stale. No fan-out.
func (c *CurrentInstructions) detach(inst *ParsedInstruction) {
	if w := c.watches[inst]; w != nil {
		w.Close()
		delete(c.watches, inst)
	}
	if c.entries[inst.addr] == inst {
		delete(c.entries, inst.addr)
	}
	inst.live = false
}

// Evict detaches inst and tells every holder it is no longer current. Graph
// edges to it go stale rather than away; the arbiter notices the dead Live
// bit on the next visit.
func (c *CurrentInstructions) Evict(inst *ParsedInstruction) {
	c.detach(inst)
	c.registry.ReplaceAll(inst, nil)
}

// Replace implements Replacer. On reduction the survivor takes over the
// slot; on eviction (new == nil) the detach has already happened and this
// is a no-op.
func (c *CurrentInstructions) Replace(old, new *ParsedInstruction) {
	if c.entries[old.addr] != old {
		return
	}
	c.detach(old)
	if new != nil {
		c.SetAsCurrent(new)
	}
}

// PreviousInstructions keeps, per address, every instruction that has ever
// been valid there. Additions are permanent: when the guest rewrites a site
// back to an older byte pattern, the original instance -- with its graph
// edges intact -- is revived instead of re-parsed.
type PreviousInstructions struct {
	bus     *mem.Bus
	entries map[mem.SegmentedAddress][]*ParsedInstruction
}

func NewPreviousInstructions(bus *mem.Bus, registry *ReplacerRegistry) *PreviousInstructions {
	p := &PreviousInstructions{
		bus:     bus,
		entries: map[mem.SegmentedAddress][]*ParsedInstruction{},
	}
	registry.Register(p)
	return p
}

func (p *PreviousInstructions) Add(inst *ParsedInstruction) {
	for _, x := range p.entries[inst.addr] {
		if x == inst {
			return
		}
	}
	p.entries[inst.addr] = append(p.entries[inst.addr], inst)
}

// GetIfMatchesMemory returns a prior instance at addr whose signature
// matches what memory holds right now, wildcards matching anything. First
// match in insertion order; after reduction at most one instance per
// (family, final signature) group is left to match.
func (p *PreviousInstructions) GetIfMatchesMemory(addr mem.SegmentedAddress) *ParsedInstruction {
	for _, inst := range p.entries[addr] {
		if inst.sig.Matches(p.bus, addr) {
			return inst
		}
	}
	return nil
}

// All returns every recorded instance at addr, for the reducer.
func (p *PreviousInstructions) All(addr mem.SegmentedAddress) []*ParsedInstruction {
	return p.entries[addr]
}

// Replace implements Replacer: identity rewrites are the only removals this
// cache ever sees.
func (p *PreviousInstructions) Replace(old, new *ParsedInstruction) {
	if new == nil {
		return // eviction; history stays
	}
	list := p.entries[old.addr]
	oldAt := -1
	hasNew := false
	for i, x := range list {
		if x == old {
			oldAt = i
		}
		if x == new {
			hasNew = true
		}
	}
	if oldAt < 0 {
		return
	}
	if hasNew {
		p.entries[old.addr] = append(list[:oldAt], list[oldAt+1:]...)
		return
	}
	list[oldAt] = new
}
