package cpu

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"

	"go86/mem"
)

// dump keeps spew from chasing the cyclic successor/predecessor maps all
// the way around a loop.
var dump = spew.ConfigState{MaxDepth: 3, Indent: " "}

type model struct {
	cpu *Cpu

	org    mem.SegmentedAddress // only for drawing the page table
	prevIP mem.SegmentedAddress
	error  error
}

// Init is the first function that will be called. Loading happened before
// the program started, so there is nothing to kick off.
func (m model) Init() tea.Cmd {
	return nil
}

// Update is called when a message is received; a step key runs one dispatch
// cycle.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q":
			return m, tea.Quit

		case " ", "j":
			m.prevIP = m.cpu.State.IPSegmented()
			if err := m.cpu.Tick(); err != nil {
				m.error = err
				return m, tea.Quit
			}
			if m.cpu.Exec.Halted() {
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

// renderRow renders 16 bytes as a line. The byte at CS:IP is highlighted.
func (m model) renderRow(start uint32) string {
	ip := m.cpu.State.IPSegmented().Linear()
	s := fmt.Sprintf("%05x | ", start)
	for a := start; a < start+16; a++ {
		b := m.cpu.Bus.ReadU8(a)
		if a == ip {
			s += fmt.Sprintf("[%02x] ", b)
		} else {
			s += fmt.Sprintf(" %02x  ", b)
		}
	}
	return s
}

func (m model) status() string {
	s := m.cpu.State
	var flags string
	for _, flag := range []bool{
		s.Flags.Overflow,
		s.Flags.Direction,
		s.Flags.Interrupt,
		s.Flags.Sign,
		s.Flags.Zero,
		s.Flags.AuxCarry,
		s.Flags.Parity,
		s.Flags.Carry,
	} {
		if flag {
			flags += "/ "
		} else {
			flags += "  "
		}
	}
	return fmt.Sprintf(`
CS:IP: %s (%s)
   AX: %04x  BX: %04x  CX: %04x  DX: %04x
   SI: %04x  DI: %04x  BP: %04x  SP: %04x
   DS: %04x  ES: %04x  SS: %04x
O D I S Z A P C
`,
		s.IPSegmented(), m.prevIP,
		s.Reg16(RegAX), s.Reg16(RegBX), s.Reg16(RegCX), s.Reg16(RegDX),
		s.Reg16(RegSI), s.Reg16(RegDI), s.Reg16(RegBP), s.Reg16(RegSP),
		s.DS, s.ES, s.SS,
	) + flags
}

func (m model) pageTable() string {
	header := " addr | "
	for b := range 16 {
		header += fmt.Sprintf("  %01x  ", b)
	}

	rows := []string{header}

	org := m.org.Linear()
	ip := m.cpu.State.IPSegmented().Linear() &^ 0xf
	for _, a := range []uint32{
		org, org + 16, org + 32, org + 48,
		ip, ip + 16,
	} {
		rows = append(rows, m.renderRow(a))
	}
	return strings.Join(rows, "\n")
}

func (m model) upcoming() string {
	if node := m.cpu.Ctx.NextFromGraph; node != nil {
		return dump.Sdump(node)
	}
	if cur := m.cpu.Feeder.Insts.Current.Get(m.cpu.State.IPSegmented()); cur != nil {
		return dump.Sdump(cur)
	}
	return "(not yet decoded)"
}

// View renders the program's UI: memory around the load point and the
// instruction pointer, register status, and the node about to run.
func (m model) View() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.JoinHorizontal(
			lipgloss.Top,
			m.pageTable(),
			m.status(),
		),
		"",
		m.upcoming(),
	)
}

// Debug starts an interactive stepper TUI over the loaded program. Space or
// j steps one dispatch cycle, q quits.
func (c *Cpu) Debug() error {
	m, err := tea.NewProgram(model{
		cpu: c,
		org: c.State.IPSegmented(),
	}).Run()
	if err != nil {
		return err
	}
	if x := m.(model); x.error != nil {
		return x.error
	}
	return nil
}
