package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// checkEdges asserts the graph invariant: every successor edge is keyed by
// its target's address and mirrored by a predecessor entry.
func checkEdges(t *testing.T, nodes ...Node) {
	t.Helper()
	for _, n := range nodes {
		for k, s := range n.Successors() {
			assert.Equal(t, s.Address().Linear(), k)
			_, ok := s.Predecessors()[n]
			assert.True(t, ok, "missing back-edge %s -> %s", n.Address(), s.Address())
		}
	}
}

func TestLinearTwoStep(t *testing.T) {
	// mov ax,1234 then nop
	c := boot(t, "b8 34 12 90")

	steps(t, c, 1)
	mov := c.Feeder.Insts.Current.Get(org)
	assert.NotNil(t, mov)
	assert.Equal(t, mov.Def.Name, "MOV")
	assert.Equal(t, c.State.Reg16(RegAX), uint16(0x1234))

	steps(t, c, 1)
	nop := c.Feeder.Insts.Current.Get(org.Plus(3))
	assert.NotNil(t, nop)
	assert.Equal(t, nop.Def.Family, FamNop)

	// the second step executed the nop, and the edge exists
	assert.Same(t, c.Ctx.LastExecuted, Node(nop))
	assert.Same(t, mov.Successors()[org.Plus(3).Linear()], Node(nop))
	checkEdges(t, mov, nop)
}

func TestLoopFormsBackEdge(t *testing.T) {
	// inc ax; jmp -3
	c := boot(t, "40 eb fd")

	steps(t, c, 2)
	inc := c.Feeder.Insts.Current.Get(org)
	jmp := c.Feeder.Insts.Current.Get(org.Plus(1))
	assert.NotNil(t, inc)
	assert.NotNil(t, jmp)

	// second pass around the loop reuses both instances
	steps(t, c, 2)
	assert.Same(t, c.Feeder.Insts.Current.Get(org), inc)
	assert.Same(t, c.Feeder.Insts.Current.Get(org.Plus(1)), jmp)
	assert.Len(t, c.Feeder.Insts.Current.entries, 2)
	assert.Equal(t, c.State.Reg16(RegAX), uint16(2))

	// edges both ways around the cycle
	assert.Same(t, inc.Successors()[org.Plus(1).Linear()], Node(jmp))
	assert.Same(t, jmp.Successors()[org.Linear()], Node(inc))
	checkEdges(t, inc, jmp)

	// parsing happened exactly once per site
	assert.Len(t, c.Feeder.Insts.Previous.All(org), 1)
	assert.Len(t, c.Feeder.Insts.Previous.All(org.Plus(1)), 1)
}

func TestSilentStoreDoesNotEvict(t *testing.T) {
	c := boot(t, "b8 34 12 90")
	steps(t, c, 2)
	nop := c.Feeder.Insts.Current.Get(org.Plus(3))

	// an external agent rewrites the nop byte with itself
	c.Bus.WriteU8(org.Plus(3).Linear(), 0x90)

	assert.Same(t, c.Feeder.Insts.Current.Get(org.Plus(3)), nop)
	assert.True(t, nop.Live())
	assert.Len(t, c.Feeder.Insts.Previous.All(org.Plus(3)), 1) // no re-parse
}

// smcLoop boots the self-modification playground: mov ax,1234 at 1000:0
// followed by a jmp back to it, and runs until the graph has settled (two
// laps: both nodes current, both edges linked).
func smcLoop(t *testing.T) *Cpu {
	t.Helper()
	c := boot(t, "b8 34 12 eb fb")
	steps(t, c, 4)
	return c
}

func TestSelfModificationInstallsSelector(t *testing.T) {
	c := smcLoop(t)
	movAX := c.Feeder.Insts.Current.Get(org)
	jmp := c.Feeder.Insts.Current.Get(org.Plus(3))

	// rewrite the opcode: mov ax -> mov cx
	c.Bus.WriteU8(org.Linear(), 0xb9)
	assert.False(t, movAX.Live())
	assert.Nil(t, c.Feeder.Insts.Current.Get(org))

	// the graph still suggests the stale mov ax; stepping from 1000:0
	// must notice the divergence
	steps(t, c, 1)

	movCX := c.Feeder.Insts.Current.Get(org)
	assert.NotNil(t, movCX)
	assert.NotSame(t, movCX, movAX)
	assert.Equal(t, c.State.Reg16(RegCX), uint16(0x1234))
	assert.Equal(t, c.State.Reg16(RegAX), uint16(0x1234)) // from the laps before

	// both shapes live under one selector now
	sel := c.Feeder.Selector(org)
	assert.NotNil(t, sel)
	assert.True(t, sel.HasCandidate(movAX))
	assert.True(t, sel.HasCandidate(movCX))
	assert.Len(t, sel.Candidates(), 2)

	// the old mov is history, not garbage
	assert.Contains(t, c.Feeder.Insts.Previous.All(org), movAX)

	// the loop's back edge routes through the selector
	assert.Same(t, jmp.Successors()[org.Linear()], Node(sel))

	// re-executing 1000:0 picks mov cx by signature match
	steps(t, c, 2)
	assert.Same(t, c.Ctx.LastExecuted, Node(movCX))
	checkEdges(t, movAX, movCX, jmp, sel)
}

func TestImmediateRewriteReducesToOne(t *testing.T) {
	c := smcLoop(t)
	movA := c.Feeder.Insts.Current.Get(org)

	// rewrite only the immediate: same shape, different data
	c.Bus.WriteU8(org.Plus(1).Linear(), 0x35)
	assert.False(t, movA.Live())

	steps(t, c, 1)

	// no selector: the two instances folded into one
	assert.Nil(t, c.Feeder.Selector(org))
	survivor := c.Feeder.Insts.Current.Get(org)
	assert.NotNil(t, survivor)
	assert.False(t, survivor.Imm16.UseValue())
	assert.Equal(t, survivor.Signature().String(), "b8 ?? ??")
	assert.Equal(t, c.State.Reg16(RegAX), uint16(0x1235))

	// one live instance at the site, not two
	assert.Len(t, c.Feeder.Insts.Previous.All(org), 1)

	// further immediate rewrites no longer evict at all; the executor
	// reads the live bytes
	c.Bus.WriteU8(org.Plus(1).Linear(), 0x99)
	assert.True(t, survivor.Live())
	steps(t, c, 2)
	assert.Equal(t, c.State.Reg16(RegAX), uint16(0x1299))
}

func TestRevertReusesOriginalInstance(t *testing.T) {
	c := smcLoop(t)
	movAX := c.Feeder.Insts.Current.Get(org)

	// phase B: different opcode, selector appears
	c.Bus.WriteU8(org.Linear(), 0xb9)
	steps(t, c, 2)
	movCX := c.Feeder.Insts.Current.Get(org)
	assert.NotSame(t, movAX, movCX)

	// phase A again: bytes match the original mov ax
	c.Bus.WriteU8(org.Linear(), 0xb8)
	assert.False(t, movCX.Live())

	steps(t, c, 1)

	// the original instance came back, object identity preserved
	assert.Same(t, c.Ctx.LastExecuted, Node(movAX))
	assert.Same(t, c.Feeder.Insts.Current.Get(org), movAX)
	assert.True(t, movAX.Live())

	// and no third instance was ever parsed
	assert.Len(t, c.Feeder.Insts.Previous.All(org), 2)
}

func TestRevertThroughFeederAlone(t *testing.T) {
	// the Previous->Current promotion also works without the graph: a site
	// that reverts to a known shape is never re-parsed
	b, f := feederFixture(t, "b8 34 12")
	first, _ := f.GetFromMemory(org)
	b.WriteU8(org.Linear(), 0xb9)
	_, _ = f.GetFromMemory(org)
	b.WriteU8(org.Linear(), 0xb8)

	again, err := f.GetFromMemory(org)
	assert.NoError(t, err)
	assert.Same(t, first, again)
}

func TestSelectorLearnsThirdShape(t *testing.T) {
	c := smcLoop(t)

	c.Bus.WriteU8(org.Linear(), 0xb9) // mov cx
	steps(t, c, 2)
	sel := c.Feeder.Selector(org)
	assert.NotNil(t, sel)

	c.Bus.WriteU8(org.Linear(), 0xba) // mov dx: new to the selector
	steps(t, c, 1)

	// wait for the loop to come back around to 1000:0
	for c.State.IP != 0 {
		steps(t, c, 1)
	}
	steps(t, c, 1)

	assert.Equal(t, c.State.Reg16(RegDX), uint16(0x1234))
	assert.Len(t, sel.Candidates(), 3)
}

func TestStoreOverwritesUpcomingCode(t *testing.T) {
	// the guest rewrites an instruction it has not reached yet; decode sees
	// the new byte, never a stale one
	c := boot(t, "bb 06 00 c6 07 90 40 f4")
	//            ^bx=6    ^[bx]=90   ^inc ax, the victim

	assert.NoError(t, c.Run())
	assert.Equal(t, c.State.Reg16(RegAX), uint16(0)) // nop ran, not inc
}

func TestGuestSelfEviction(t *testing.T) {
	// the guest rewrites the immediate of an instruction it already
	// executed; the watchpoint fires inside the store, between dispatch
	// steps, and the next lap decodes the new bytes
	c := boot(t, "b9 02 00 b8 34 12 c6 06 04 00 99 49 75 f5 f4")
	// 0: mov cx,2
	// 3: mov ax,1234        <- the victim, immediate at offset 4
	// 6: mov byte [0004],99
	// b: dec cx
	// c: jnz 0003
	// e: hlt

	assert.NoError(t, c.Run())
	assert.Equal(t, c.State.Reg16(RegCX), uint16(0))
	// lap two read the rewritten immediate
	assert.Equal(t, c.State.Reg16(RegAX), uint16(0x1299))
	// the first shape was evicted but kept as history
	assert.Len(t, c.Feeder.Insts.Previous.All(org.Plus(3)), 2)
}
