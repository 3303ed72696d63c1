package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go86/mem"
)

// feederFixture wires a bus, registry and feeder the way New does, without
// dragging in the executor.
func feederFixture(t *testing.T, hex string) (*mem.Bus, *InstructionsFeeder) {
	t.Helper()
	b := testBus(org, hex)
	return b, NewInstructionsFeeder(b, NewReplacerRegistry())
}

func TestCurrentEvictsOnRealWrite(t *testing.T) {
	b, f := feederFixture(t, "b8 34 12")
	inst, err := f.GetFromMemory(org)
	assert.NoError(t, err)
	assert.Same(t, f.Current.Get(org), inst)
	assert.True(t, inst.Live())

	// rewrite the opcode byte
	b.WriteU8(org.Linear(), 0xb9)

	assert.Nil(t, f.Current.Get(org))
	assert.False(t, inst.Live())
	// history is forever
	assert.Contains(t, f.Previous.All(org), inst)
}

func TestCurrentIgnoresSilentStore(t *testing.T) {
	b, f := feederFixture(t, "b8 34 12")
	inst, _ := f.GetFromMemory(org)

	b.WriteU8(org.Linear(), 0xb8) // same byte
	b.WriteU8(org.Plus(1).Linear(), 0x34)

	assert.Same(t, f.Current.Get(org), inst)
	assert.True(t, inst.Live())
}

func TestCurrentIgnoresWildcardWrite(t *testing.T) {
	b, f := feederFixture(t, "b8 34 12")
	inst, _ := f.GetFromMemory(org)

	// fake a reduction on the immediate
	inst.Imm16.ClearUseValue()
	inst.Signature().ClearRange(1, 2)

	b.WriteU8(org.Plus(1).Linear(), 0x99)

	// the write hit a data byte; the decode is still valid
	assert.Same(t, f.Current.Get(org), inst)
	assert.True(t, inst.Live())
	assert.Equal(t, inst.Imm16.Load(b), uint16(0x1299))

	// the opcode byte is still identity
	b.WriteU8(org.Linear(), 0xb9)
	assert.Nil(t, f.Current.Get(org))
}

func TestEvictionDisarmsWatchpoints(t *testing.T) {
	b, f := feederFixture(t, "b8 34 12")
	inst, _ := f.GetFromMemory(org)

	b.WriteU8(org.Linear(), 0xb9)
	assert.False(t, inst.Live())

	// the footprint is no longer watched; further writes cannot fire the
	// old callback and resurrect anything
	b.WriteU8(org.Plus(2).Linear(), 0x77)
	assert.Nil(t, f.Current.Get(org))
	assert.False(t, inst.Live())
}

func TestPreviousRevivesOnRevert(t *testing.T) {
	b, f := feederFixture(t, "b8 34 12")
	first, _ := f.GetFromMemory(org)

	b.WriteU8(org.Linear(), 0xb9) // evict
	second, err := f.GetFromMemory(org)
	assert.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, second.Signature().String(), "b9 34 12")

	// revert to the original pattern
	b.WriteU8(org.Linear(), 0xb8)
	third, err := f.GetFromMemory(org)
	assert.NoError(t, err)

	// object identity preserved: no fresh parse
	assert.Same(t, first, third)
	assert.True(t, first.Live())
	assert.Same(t, f.Current.Get(org), first)
	assert.Len(t, f.Previous.All(org), 2)
}

func TestCurrentHitIsSideEffectFree(t *testing.T) {
	_, f := feederFixture(t, "b8 34 12")
	a, _ := f.GetFromMemory(org)
	b2, _ := f.GetFromMemory(org)
	assert.Same(t, a, b2)
	assert.Len(t, f.Previous.All(org), 1)
}

func TestCoherenceInvariant(t *testing.T) {
	// every Current entry matches memory under the wildcard rule
	b, f := feederFixture(t, "b8 34 12 40 90")
	addrs := []mem.SegmentedAddress{org, org.Plus(3), org.Plus(4)}
	for _, a := range addrs {
		_, err := f.GetFromMemory(a)
		assert.NoError(t, err)
	}

	check := func() {
		for _, a := range addrs {
			if inst := f.Current.Get(a); inst != nil {
				assert.True(t, inst.Signature().Matches(b, a), "stale entry at %s", a)
			}
		}
	}

	check()
	b.WriteU8(org.Plus(3).Linear(), 0x48) // inc ax -> dec ax
	check()
	assert.Nil(t, f.Current.Get(org.Plus(3)))
	_, err := f.GetFromMemory(org.Plus(3))
	assert.NoError(t, err)
	check()
}
