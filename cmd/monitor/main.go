// Command monitor is a read-only terminal status view of a running
// emulation: it starts a machine.Runner in the background and polls its
// shared Registry for CPU registers and drive activity, the same split a
// real hardware-debugger front end keeps between "the machine runs" and
// "something watches it" rather than single-stepping from the UI thread.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jchacon/apple2e/apple2"
	"github.com/jchacon/apple2e/machine"
)

var romPath string

func main() {
	root := &cobra.Command{
		Use:   "monitor",
		Short: "Read-only status TUI for a running Apple IIe core",
		RunE:  run,
	}
	root.Flags().StringVar(&romPath, "rom", "", "path to a 12288-byte system ROM image")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	def := &apple2.MachineDef{}
	if romPath != "" {
		data, err := os.ReadFile(romPath)
		if err != nil {
			return err
		}
		def.MainROM = data
	}
	m, err := apple2.Init(def)
	if err != nil {
		return err
	}

	runner := machine.NewRunner(m, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = runner.Run(ctx, nil)
	}()

	p := tea.NewProgram(newModel(runner))
	_, err = p.Run()
	return err
}

type tickMsg time.Time

func pollEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type model struct {
	runner *machine.Runner
	snap   machine.Snapshot
}

func newModel(r *machine.Runner) model {
	return model{runner: r}
}

func (m model) Init() tea.Cmd {
	return pollEvery(100 * time.Millisecond)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		m.snap = m.runner.Registry.Load()
		return m, pollEvery(100 * time.Millisecond)
	}
	return m, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	onStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	offStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func driveLabel(n int, on bool) string {
	label := fmt.Sprintf("drive %d", n)
	if on {
		return onStyle.Render(label + ": spinning")
	}
	return offStyle.Render(label + ": idle")
}

func (m model) View() string {
	s := headerStyle.Render("Apple IIe monitor") + "\n\n"
	s += fmt.Sprintf("cycles run: %d\n", m.snap.CyclesRun)
	s += fmt.Sprintf("PC=%.4X A=%.2X X=%.2X Y=%.2X P=%.2X SP=%.2X\n\n",
		m.snap.PC, m.snap.A, m.snap.X, m.snap.Y, m.snap.P, m.snap.SP)
	s += driveLabel(0, m.snap.DriveLight[0]) + "  " + driveLabel(1, m.snap.DriveLight[1]) + "\n"
	s += "\n[q] quit\n"
	return s
}
