// Package machine runs an apple2.Machine on its own goroutine, paced to
// real wall-clock speed in fixed-size cycle slices, and publishes a
// read-mostly snapshot of UI-visible state (video memory, disk activity
// LEDs) for a separate UI goroutine to poll without contending with the
// emulation thread's own memory access. A third goroutine drains a log
// channel so neither the emulation nor the UI ever blocks on I/O.
//
// This is the concurrency shape cpu.go's own SetClock comment gestures at
// but never implements ("TODO...use golang.org/x/sys/unix and at least on
// unix use nanosleep calls"): golang.org/x/sync's errgroup supervises the
// emulation and logging goroutines, and golang.org/x/sys/unix.Nanosleep
// paces the emulation goroutine.
package machine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/jchacon/apple2e/apple2"
	"github.com/jchacon/apple2e/disassemble"
	"github.com/jchacon/apple2e/diskimage"
	"github.com/jchacon/apple2e/smartport"
	"github.com/jchacon/apple2e/trace"
)

// CyclesPerSlice is how many CPU cycles run between wall-clock pacing
// checks. A larger slice amortizes the syscall cost of Nanosleep at the
// price of coarser pacing granularity.
const CyclesPerSlice = 100000

// TargetHz is the Apple IIe's nominal CPU clock rate.
const TargetHz = 1020484

// LogEntry is one line destined for the logging goroutine.
type LogEntry struct {
	Time    time.Time
	Message string
}

// CPUState selects the emulation thread's run mode: Run, Pause, Step
// (execute one instruction then return to Pause), or Exit.
type CPUState int

const (
	Run CPUState = iota
	Pause
	Step
	Exit
)

// Command is a message sent from a UI goroutine to the emulation thread.
// Commands are applied at the top of a slice, between instructions,
// never mid-instruction.
type Command struct {
	SetMemory   *SetMemoryCmd
	GetMemory   *GetMemoryCmd
	LoadDisk    *LoadDiskCmd
	FileLoad    *FileLoadCmd
	Disassembly *DisassemblyCmd
	Trace       *TraceCmd
	SwapDisks   bool
	Reboot      bool
	Debug       bool
	State       *CPUState
}

// SetMemoryCmd pokes bytes directly into the machine's address space,
// bypassing soft switches (mirrors the CPU/memory boundary's SetForce).
type SetMemoryCmd struct {
	Address uint16
	Bytes   []byte
}

// GetMemoryCmd reads a span of main memory and delivers it on Reply. The
// channel should be buffered; the emulation thread never blocks on it.
type GetMemoryCmd struct {
	Address uint16
	Length  int
	Reply   chan []byte
}

// LoadDiskCmd inserts a disk image file into a drive bay: a Disk II bay
// for floppies, the SmartPort block device when IsHard is set.
type LoadDiskCmd struct {
	Drive  int
	Path   string
	IsHard bool
}

// FileLoadCmd pokes a file's contents into memory at Address, optionally
// repointing the PC there: the "file was modified on disk, reload it"
// development loop.
type FileLoadCmd struct {
	Path    string
	Address uint16
	SetPC   bool
}

// DisassemblyCmd writes a disassembly listing of [From, To) to a file.
type DisassemblyCmd struct {
	From, To uint16
	Path     string
}

// TraceCmd turns instruction tracing on (to the given file, or stdout when
// Path is empty) or off.
type TraceCmd struct {
	Enable bool
	Path   string
}

// Snapshot is the UI-visible state published after every slice: video
// memory is copied out wholesale rather than shared, so a UI goroutine
// reading it never races with the emulation goroutine's next slice.
type Snapshot struct {
	Main       [0x10000]byte
	Aux        [0x10000]byte
	CyclesRun  uint64
	DriveLight [2]bool

	PC      uint16
	A, X, Y uint8
	P, SP   uint8
}

// Registry holds the latest Snapshot behind a RWMutex: the emulation
// goroutine is the sole writer, any number of UI goroutines can read
// concurrently.
type Registry struct {
	mu   sync.RWMutex
	snap Snapshot
}

// Load returns a copy of the latest published snapshot.
func (r *Registry) Load() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

func (r *Registry) store(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = s
}

// Runner supervises the emulation and logging goroutines for one Machine;
// UI snapshots are published from the emulation goroutine.
type Runner struct {
	Machine  *apple2.Machine
	Registry *Registry

	logCh  chan LogEntry
	uiTick chan *Snapshot
	cmdCh  chan Command

	state     CPUState
	traceFile *os.File
}

// NewRunner returns a Runner ready to Run. uiTickBuffer sizes the channel
// the UI goroutine drains snapshots from; callers that can't keep up with
// real time should read with a select/default rather than make this
// unbounded, but the channel itself uses a generously sized buffer
// instead of true lock-free growth (Go channels have no built-in
// unbounded variant).
func NewRunner(m *apple2.Machine, uiTickBuffer int) *Runner {
	return &Runner{
		Machine:  m,
		Registry: &Registry{},
		logCh:    make(chan LogEntry, 4096),
		uiTick:   make(chan *Snapshot, uiTickBuffer),
		cmdCh:    make(chan Command, 256),
	}
}

// Send enqueues a UI->emulator command without blocking; it is applied
// at the top of the next slice, between instructions.
func (r *Runner) Send(cmd Command) {
	select {
	case r.cmdCh <- cmd:
	default:
	}
}

// applyCommands drains every pending command, applying each at the slice
// boundary (never mid-instruction).
func (r *Runner) applyCommands() {
	for {
		select {
		case cmd := <-r.cmdCh:
			r.apply(cmd)
		default:
			return
		}
	}
}

func (r *Runner) apply(cmd Command) {
	if cmd.SetMemory != nil {
		addr := cmd.SetMemory.Address
		for _, b := range cmd.SetMemory.Bytes {
			r.Machine.Fabric.SetForce(addr, b)
			addr++
		}
	}
	if cmd.GetMemory != nil {
		gm := cmd.GetMemory
		main := r.Machine.Fabric.MainCopy()
		out := make([]byte, 0, gm.Length)
		for i := 0; i < gm.Length; i++ {
			out = append(out, main[gm.Address+uint16(i)])
		}
		select {
		case gm.Reply <- out:
		default:
		}
	}
	if cmd.LoadDisk != nil {
		r.loadDisk(cmd.LoadDisk)
	}
	if cmd.FileLoad != nil {
		fl := cmd.FileLoad
		data, err := os.ReadFile(fl.Path)
		if err != nil {
			r.Log("FileLoad %q: %v", fl.Path, err)
		} else {
			addr := fl.Address
			for _, b := range data {
				r.Machine.Fabric.SetForce(addr, b)
				addr++
			}
			if fl.SetPC {
				r.Machine.CPU.PC = fl.Address
			}
		}
	}
	if cmd.Trace != nil {
		r.setTrace(cmd.Trace)
	}
	if cmd.Debug {
		c := r.Machine.CPU
		r.Log("PC=%.4X A=%.2X X=%.2X Y=%.2X P=%.2X SP=%.2X cycles=%d",
			c.PC, c.A, c.X, c.Y, c.P, c.S, r.Machine.Cycles())
	}
	if cmd.Disassembly != nil {
		if err := r.writeDisassembly(cmd.Disassembly); err != nil {
			r.Log("Disassembly to %q: %v", cmd.Disassembly.Path, err)
		}
	}
	if cmd.SwapDisks {
		r.Machine.SwapDisks()
	}
	if cmd.Reboot {
		if err := r.Machine.Reboot(); err != nil {
			r.Log("Reboot: %v", err)
		}
	}
	if cmd.State != nil {
		r.state = *cmd.State
	}
}

// loadDisk resolves a LoadDisk command against the filesystem. A failed
// load logs and leaves the drive untouched, per the "no disk is inserted
// in that drive" error contract.
func (r *Runner) loadDisk(ld *LoadDiskCmd) {
	if ld.IsHard {
		data, err := os.ReadFile(ld.Path)
		if err != nil {
			r.Log("LoadDisk (hard) %q: %v", ld.Path, err)
			return
		}
		r.Machine.Fabric.SmartPort = smartport.New(data)
		return
	}
	im, err := diskimage.LoadImage(ld.Path)
	if err != nil {
		r.Log("LoadDisk drive %d %q: %v", ld.Drive, ld.Path, err)
		return
	}
	r.Machine.InsertImage(ld.Drive, im)
}

// setTrace wires or unwires the machine's per-instruction trace sink.
func (r *Runner) setTrace(tc *TraceCmd) {
	if !tc.Enable {
		r.Machine.TraceSink = nil
		if r.traceFile != nil {
			r.traceFile.Close()
			r.traceFile = nil
		}
		return
	}
	out := os.Stdout
	if tc.Path != "" {
		f, err := os.Create(tc.Path)
		if err != nil {
			r.Log("Trace to %q: %v", tc.Path, err)
			return
		}
		r.traceFile = f
		out = f
	}
	r.Machine.TraceSink = trace.NewSink(out)
}

// writeDisassembly dumps a listing of main memory between From and To.
func (r *Runner) writeDisassembly(d *DisassemblyCmd) error {
	f, err := os.Create(d.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	pc := d.From
	for pc < d.To {
		line, n := disassemble.StepCMOS(pc, r.Machine.Fabric)
		if _, err := fmt.Fprintln(f, line); err != nil {
			return err
		}
		pc += uint16(n)
	}
	return nil
}

// Log enqueues a log line without blocking the caller; if the logging
// goroutine has fallen far enough behind to fill the buffer, the entry is
// dropped rather than stalling emulation.
func (r *Runner) Log(format string, args ...interface{}) {
	select {
	case r.logCh <- LogEntry{Time: time.Now(), Message: fmt.Sprintf(format, args...)}:
	default:
	}
}

// Run starts the emulation and logging goroutines and blocks until ctx is
// canceled or one of them returns an error.
func (r *Runner) Run(ctx context.Context, sink func(LogEntry)) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.runEmulation(ctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case entry := <-r.logCh:
				if sink != nil {
					sink(entry)
				}
			}
		}
	})

	return g.Wait()
}

// runEmulation is the CPU thread: it runs CyclesPerSlice ticks, then
// sleeps via unix.Nanosleep for however long real time says it should
// have taken minus however long it actually took, so the machine neither
// races ahead of nor lags behind a real Apple IIe.
func (r *Runner) runEmulation(ctx context.Context) error {
	cyclesPerSlice := float64(CyclesPerSlice)
	targetHz := float64(TargetHz)
	sliceWall := time.Duration(cyclesPerSlice / targetHz * float64(time.Second))
	var cycles uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		r.applyCommands()
		if r.state == Exit {
			return nil
		}

		start := time.Now()
		sliceCycles := CyclesPerSlice
		switch r.state {
		case Pause:
			sliceCycles = 0
		case Step:
			// One whole instruction, then back to Pause.
			for {
				if err := r.Machine.Tick(); err != nil {
					return fmt.Errorf("machine tick error: %v", err)
				}
				cycles++
				if r.Machine.CPU.InstructionDone() {
					break
				}
			}
			sliceCycles = 0
			r.state = Pause
		}
		for i := 0; i < sliceCycles; i++ {
			if err := r.Machine.Tick(); err != nil {
				return fmt.Errorf("machine tick error: %v", err)
			}
			cycles++
		}
		elapsed := time.Since(start)

		r.publish(cycles)

		if remaining := sliceWall - elapsed; remaining > 0 {
			ts := unix.NsecToTimespec(remaining.Nanoseconds())
			for {
				leftover := unix.Timespec{}
				err := unix.Nanosleep(&ts, &leftover)
				if err == nil || err != unix.EINTR {
					break
				}
				ts = leftover
			}
		}
	}
}

func (r *Runner) publish(cycles uint64) {
	var snap Snapshot
	snap.Main = r.Machine.Fabric.MainCopy()
	snap.Aux = r.Machine.Fabric.AuxCopy()
	snap.CyclesRun = cycles
	snap.DriveLight[0] = r.Machine.Fabric.Disk.Drives[0].Motor != 0
	snap.DriveLight[1] = r.Machine.Fabric.Disk.Drives[1].Motor != 0
	snap.PC = r.Machine.CPU.PC
	snap.A, snap.X, snap.Y = r.Machine.CPU.A, r.Machine.CPU.X, r.Machine.CPU.Y
	snap.P, snap.SP = r.Machine.CPU.P, r.Machine.CPU.S
	r.Registry.store(snap)
	select {
	case r.uiTick <- &snap:
	default:
	}
}

// UITick returns the channel a UI goroutine should read published
// snapshots from; it's also valid to just call Registry.Load() on demand
// instead of reacting to every tick.
func (r *Runner) UITick() <-chan *Snapshot {
	return r.uiTick
}
