// Package apple2 wires together the 65C02 CPU, the bank-switched memory
// fabric, the Disk II controller and SmartPort into a runnable machine.
// Everything shares one clock: the memory fabric is not a clocked chip
// itself, but diskii.Controller's LSS needs a Tick every CPU cycle, so
// this package's Tick plays the coordinating role.
package apple2

import (
	"fmt"

	"github.com/jchacon/apple2e/cpu"
	"github.com/jchacon/apple2e/disassemble"
	"github.com/jchacon/apple2e/diskimage"
	"github.com/jchacon/apple2e/memfabric"
	"github.com/jchacon/apple2e/memory"
	"github.com/jchacon/apple2e/smartport"
	"github.com/jchacon/apple2e/trace"
)

// Machine is a fully wired Apple IIe: CPU plus its memory fabric.
type Machine struct {
	CPU    *cpu.Chip
	Fabric *memfabric.Fabric
	Debug  bool

	// TraceSink, when non-nil, receives one Entry per completed
	// instruction. A nil sink costs nothing beyond the single boolean
	// check Tick already makes: disabling tracing must not alter semantics.
	TraceSink *trace.Sink
	// TraceFilter, if set, is consulted before building an Entry at all,
	// so an inactive trace window (by PC range or cycle count) skips the
	// disassembly and stack walk too, not just the sink write.
	TraceFilter func(cycle uint64, pc uint16) bool

	// images remembers each drive bay's backing container so a dirty
	// track can flush to the right file before the head moves.
	images [2]*diskimage.Image

	cycles   uint64
	instrPC  uint16
	prevDone bool
}

// MachineDef supplies the ROM images and debug flag needed to bring up a
// Machine. Slot ROMs are optional; any left nil simply read as open bus.
type MachineDef struct {
	// MainROM is the motherboard ROM: 16K loads at $C000, 12K at $D000.
	MainROM []byte
	// SlotROM holds each peripheral slot's 256-byte $Cn00-$CnFF firmware,
	// indexed 1-7 (slot 0 is reserved and unused on a IIe). The Disk II
	// boot ROM conventionally goes in slot 6 and the SmartPort ROM in
	// slot 7.
	SlotROM [8][]byte
	// ExpansionROM is a card's $C800-$CFFF second-stage firmware.
	ExpansionROM []byte
	// SmartPortImage, if non-nil, backs a ProDOS block device at $C0F8.
	SmartPortImage []byte
	Debug          bool
}

// Init returns a powered-on Machine.
func Init(def *MachineDef) (*Machine, error) {
	switch len(def.MainROM) {
	case 0, 0x3000, 0x4000:
	default:
		return nil, fmt.Errorf("MainROM must be 12288 or 16384 bytes, got %d", len(def.MainROM))
	}

	fab := memfabric.New()
	fab.LoadSystemROM(def.MainROM)
	for slot, rom := range def.SlotROM {
		if len(rom) > 0 {
			fab.LoadCxROM(slot, rom)
		}
	}
	if len(def.ExpansionROM) > 0 {
		fab.LoadExpansionROM(def.ExpansionROM)
	}
	if def.SmartPortImage != nil {
		fab.SmartPort = smartport.New(def.SmartPortImage)
	}

	c, err := cpu.Init(&cpu.ChipDef{
		Cpu: cpu.CPU_CMOS,
		Ram: fab,
	})
	if err != nil {
		return nil, fmt.Errorf("can't initialize cpu: %v", err)
	}

	m := &Machine{CPU: c, Fabric: fab, Debug: def.Debug, prevDone: true}
	fab.Disk.OnSave = m.saveDrive
	return m, nil
}

// saveDrive is the controller's write-back hook: flush the bay's backing
// container before the head leaves a dirty track.
func (m *Machine) saveDrive(drive int, disk *diskimage.Disk) error {
	im := m.images[drive]
	if im == nil || im.Disk != disk {
		disk.Dirty = false
		return nil
	}
	return im.Save()
}

// InsertImage loads a decoded disk container into the given drive bay.
func (m *Machine) InsertImage(drive int, im *diskimage.Image) {
	if drive < 0 || drive > 1 {
		return
	}
	m.images[drive] = im
	m.Fabric.Disk.InsertDisk(drive, im.Disk)
}

// InsertDisk loads a raw 143,360-byte DOS 3.3 image into the given drive
// bay. The disk lives only in memory; writes to it are never flushed to a
// file.
func (m *Machine) InsertDisk(drive int, image []byte, writeProtected bool, title string) error {
	disk, err := diskimage.NewDsk(image, writeProtected, title)
	if err != nil {
		return err
	}
	m.InsertImage(drive, &diskimage.Image{Disk: disk})
	return nil
}

// SwapDisks exchanges the two drive bays' contents.
func (m *Machine) SwapDisks() {
	d := m.Fabric.Disk
	d.Drives[0], d.Drives[1] = d.Drives[1], d.Drives[0]
	d.Drives[0].Number = 0
	d.Drives[1].Number = 1
	m.images[0], m.images[1] = m.images[1], m.images[0]
}

// Reboot reinitializes the machine: RAM and soft switches reset, inserted
// disks retained, CPU runs its reset sequence from the $FFFC vector.
func (m *Machine) Reboot() error {
	m.Fabric.PowerOn()
	for {
		done, err := m.CPU.Reset()
		if err != nil {
			return fmt.Errorf("CPU reset: %v", err)
		}
		if done {
			return nil
		}
	}
}

// Tick advances the machine by one CPU cycle: the Disk II controller (and
// through it, the LSS) ticks first so any data it latches this cycle is
// visible to the CPU access that immediately follows, then the CPU itself
// ticks and commits.
func (m *Machine) Tick() error {
	m.Fabric.Disk.Tick()
	if m.prevDone {
		m.instrPC = m.CPU.PC
	}
	if err := m.CPU.Tick(); err != nil {
		return fmt.Errorf("CPU tick error: %v", err)
	}
	m.CPU.TickDone()
	m.cycles++
	m.prevDone = m.CPU.InstructionDone()
	if m.prevDone {
		m.emitTrace()
	}
	return nil
}

// Cycles returns the count of CPU cycles run since power-on.
func (m *Machine) Cycles() uint64 {
	return m.cycles
}

// emitTrace builds and writes one trace.Entry for the instruction that just
// completed, if a sink is installed and (when set) TraceFilter admits this
// cycle/PC. Building the entry costs a disassembly lookup and a stack walk,
// both skipped entirely when tracing is off.
func (m *Machine) emitTrace() {
	if m.TraceSink == nil {
		return
	}
	if m.TraceFilter != nil && !m.TraceFilter(m.cycles, m.instrPC) {
		return
	}
	var disasm string
	if m.instrPC < 0xc000 || m.instrPC > 0xc0ff {
		// Disassembling rereads the instruction bytes; inside the I/O
		// page that read would itself flip soft switches, so skip it.
		disasm, _ = disassemble.StepCMOS(m.instrPC, m.Fabric)
	}
	_ = m.TraceSink.Write(trace.Entry{
		Cycle:      m.cycles,
		PC:         m.instrPC,
		Disasm:     disasm,
		A:          m.CPU.A,
		X:          m.CPU.X,
		Y:          m.CPU.Y,
		P:          m.CPU.P,
		SP:         m.CPU.S,
		BusVal:     memory.LatestDatabusVal(m.Fabric),
		StackChain: m.stackChain(),
	})
}

// stackChain walks up from the current stack pointer reading little-endian
// word pairs as a best-effort return-address chain, the same heuristic a
// monitor-style debugger uses absent full call-frame bookkeeping: every
// JSR/interrupt pushes a return address, so scanning upward from S finds
// them, at the cost of occasionally picking up a non-address byte pair left
// over from prior stack use.
func (m *Machine) stackChain() []uint16 {
	var chain []uint16
	for s := int(m.CPU.S) + 1; s+1 <= 0xff; s += 2 {
		lo := m.Fabric.Read(uint16(0x0100 + s))
		hi := m.Fabric.Read(uint16(0x0100 + s + 1))
		addr := uint16(lo) | uint16(hi)<<8
		if addr == 0 {
			break
		}
		chain = append(chain, addr)
		if len(chain) >= 16 {
			break
		}
	}
	return chain
}
