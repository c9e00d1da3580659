// Package diskii implements the Disk II controller card: the 16
// soft-switch dispatch at $C080+slot*16, the four-phase stepper-motor
// magnet state machine, motor on/off with a deferred spin-down, and the
// Q6/Q7 read/write-mode latch wired to the lss package's Logic State
// Sequencer. Construct once, then Tick advances it in lockstep with the
// CPU clock.
package diskii

import (
	"fmt"

	"github.com/jchacon/apple2e/diskimage"
	"github.com/jchacon/apple2e/lss"
	"github.com/jchacon/apple2e/nibble"
	"github.com/jchacon/apple2e/sched"
)

// SpinningDownCycles is how many CPU cycles a drive's spindle keeps
// turning after Q4 is cleared. The LSS keeps clocking real flux the whole
// time, which boot loaders that turn the motor off early depend on.
const SpinningDownCycles = 1200000

// stepSettleCycles delays the head's arrival at a new phase after a
// stepper magnet change. One cycle is enough to keep a rapid phase walk
// ordered behind the access that caused it.
const stepSettleCycles = 1

// Controller is a slot-6 Disk II card: two drives, the shared LSS engine
// (only the selected drive's track ever feeds it), and the deferred-action
// queue for head settling and motor spin-down.
type Controller struct {
	Drives   [2]diskimage.Drive
	Selected int

	Q6, Q7  bool
	Engine  lss.Engine
	Sched   *sched.Queue
	Tracker nibble.SectorTracker

	// OnSave, when non-nil, is invoked to flush a dirty disk back to its
	// image file just before the head moves. A failed save leaves the
	// dirty state in place so the next head move retries.
	OnSave func(drive int, disk *diskimage.Disk) error

	// phase80 tracks each drive's stepper cog position in half-tracks.
	// It moves the instant a magnet pattern demands it; the drive's own
	// Phase160 follows one cycle later through the deferred queue, the
	// same split the physical head's settle time creates.
	phase80 [2]int

	latch          uint8
	writeLoad      uint8
	writeDirty     bool
	clock          uint64
	prevWriteClock uint64
}

// New returns a Controller with both drive bays empty.
func New() *Controller {
	c := &Controller{Sched: sched.New()}
	c.Drives[0].Number = 0
	c.Drives[1].Number = 1
	return c
}

// PowerOn resets the controller to its cold-boot state: both drives'
// motors off, no phase magnets energized, Q6/Q7 clear (read mode, shift).
// Inserted disks stay inserted.
func (c *Controller) PowerOn() {
	for i := range c.Drives {
		c.Drives[i].Motor = diskimage.MotorOff
		c.Drives[i].MagnetStates = 0
	}
	c.Selected = 0
	c.Q6 = false
	c.Q7 = false
	c.latch = 0
	c.writeLoad = 0
	c.writeDirty = false
	c.clock = 0
	c.prevWriteClock = 0
	c.Engine = lss.Engine{}
	c.Sched = sched.New()
	c.Tracker = nibble.SectorTracker{}
}

// InsertDisk loads a disk into drive bay 0 or 1.
func (c *Controller) InsertDisk(drive int, disk *diskimage.Disk) {
	if drive < 0 || drive > 1 {
		return
	}
	c.Drives[drive].Disk = disk
	c.Drives[drive].Phase160 = 0
	c.phase80[drive] = 0
}

// Latch returns the shift register's current contents.
func (c *Controller) Latch() uint8 {
	return c.latch
}

func (c *Controller) current() *diskimage.Drive {
	return &c.Drives[c.Selected]
}

func (c *Controller) motorOn() bool {
	return c.current().Motor != diskimage.MotorOff
}

// GetOrSet dispatches one access to the card's 16 soft switches. A real
// Disk II decodes only the low four address bits and mostly ignores the
// read/write distinction; the exceptions are the Q6/Q7 data-latch
// behaviors handled per-case below.
func (c *Controller) GetOrSet(read bool, addr uint16, value uint8) uint8 {
	drive := c.current()
	switch addr & 0xf {
	case 0x0, 0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7:
		// Stepper motor phase off/on. The magnets only move the cog while
		// the spindle is powered.
		if c.motorOn() {
			c.updateStepper(addr)
		}
		return c.latch

	case 0x8:
		// Motor off: the spindle coasts for SpinningDownCycles before the
		// drive actually stops; a second access while coasting stops it
		// immediately.
		switch drive.Motor {
		case diskimage.MotorOn:
			drive.Motor = diskimage.MotorSpinningDown
			driveNum := c.Selected
			c.Sched.Add(SpinningDownCycles, c.motorOffTag(driveNum), func() {
				d := &c.Drives[driveNum]
				if d.Motor == diskimage.MotorSpinningDown {
					d.Motor = diskimage.MotorOff
				}
			})
		case diskimage.MotorSpinningDown:
			c.Sched.Cancel(c.motorOffTag(c.Selected))
			drive.Motor = diskimage.MotorOff
		}
		return 0

	case 0x9:
		// Motor on; cancel a pending spin-down so it can't fire later and
		// stop a drive that was turned back on in time.
		c.Sched.Cancel(c.motorOffTag(c.Selected))
		drive.Motor = diskimage.MotorOn
		return 0

	case 0xa:
		c.Selected = 0
		return 0

	case 0xb:
		c.Selected = 1
		return 0

	case 0xc:
		c.Q6 = false
		if !c.Q7 {
			// Read mode: hand back the shift register. A complete nibble
			// (high bit set) is consumed: the sector tracker sees it and
			// the latch clears for the next one.
			result := c.latch
			if result&0x80 != 0 {
				c.Tracker.Feed(result)
				c.latch = 0
			}
			c.prevWriteClock = 0
			return result
		}
		// Write mode: serialize the write-load byte onto the track,
		// inferring trailing sync zeros from how long the software waited
		// since its previous store (64 LSS clocks = a plain 8-bit nibble,
		// 72 = one sync bit, 80 = two).
		if drive.Disk != nil {
			syncBits := 0
			if c.prevWriteClock != 0 {
				delta := c.clock - c.prevWriteClock
				if delta > 64 {
					syncBits = int((delta - 64) / 8)
				}
			}
			c.writeNibble(drive, c.writeLoad, syncBits)
		}
		c.prevWriteClock = c.clock
		c.writeDirty = true
		return 0

	case 0xd:
		c.Q6 = true
		c.Engine.Reset()
		c.latch = c.Engine.Latch
		if c.Q7 && !read {
			c.writeLoad = value
		}
		return 0

	case 0xe:
		c.Q7 = false
		c.prevWriteClock = 0
		// Q6 high + Q7 low senses the write-protect switch.
		if c.Q6 && drive.Disk != nil && drive.Disk.WriteProtected {
			return 0xff
		}
		return 0

	default: // 0xf
		c.Q7 = true
		c.prevWriteClock = 0
		if !read {
			c.writeLoad = value
		}
		return 0
	}
}

func (c *Controller) motorOffTag(drive int) string {
	return fmt.Sprintf("motoroff:%d", drive)
}

// writeNibble lays value's 8 bits plus trailing sync zeros onto the
// selected drive's current track at the head position.
func (c *Controller) writeNibble(drive *diskimage.Drive, value uint8, syncBits int) {
	for i := 7; i >= 0; i-- {
		drive.Disk.WriteBit(drive.Phase160, (value>>uint(i))&1)
	}
	for i := 0; i < syncBits; i++ {
		drive.Disk.WriteBit(drive.Phase160, 0)
	}
}

// updateStepper recomputes head movement after a magnet change, per the
// cog model: move toward an energized adjacent magnet, don't move if both
// adjacent magnets pull (that's a quarter-track position), and never move
// against the magnet opposite the cog.
func (c *Controller) updateStepper(addr uint16) {
	drive := c.current()
	driveNum := c.Selected
	phase := int((addr >> 1) & 3)
	bit := uint8(1) << uint(phase)
	if addr&1 != 0 {
		drive.MagnetStates |= bit
	} else {
		drive.MagnetStates &^= bit
	}
	drive.MagnetStates &= 0xf

	p80 := c.phase80[driveNum]
	direction := 0
	if drive.MagnetStates&(1<<uint((p80+1)&3)) != 0 {
		direction++
	}
	if drive.MagnetStates&(1<<uint((p80+3)&3)) != 0 {
		direction--
	}

	// A pending write flushes to the image before the head leaves the
	// track it wrote.
	if direction != 0 && c.writeDirty && drive.Disk != nil {
		if c.OnSave == nil {
			c.writeDirty = false
		} else if err := c.OnSave(driveNum, drive.Disk); err == nil {
			c.writeDirty = false
		}
	}

	// Magnet pairs C/6/3/9 hold the cog between two full phases: a
	// quarter-track step instead of a half-track one.
	quarter := 0
	switch drive.MagnetStates {
	case 0xc, 0x6, 0x3, 0x9:
		quarter = direction
		direction = 0
	}

	switch {
	case direction > 0 && p80 < 79:
		p80++
	case direction < 0 && p80 > 0:
		p80--
	}
	c.phase80[driveNum] = p80

	newPhase160 := p80*2 + quarter
	if newPhase160 < 0 {
		newPhase160 = 0
	}
	if newPhase160 >= diskimage.MaxPhase {
		newPhase160 = diskimage.MaxPhase - 1
	}
	c.Sched.Add(stepSettleCycles, fmt.Sprintf("updatephase:%d", driveNum), func() {
		c.applyPhase(driveNum, newPhase160)
	})
}

// applyPhase lands the head on its new phase, rescaling the bit position
// by the track-length ratio so the head stays at the same angular spot on
// the platter.
func (c *Controller) applyPhase(driveNum, phase160 int) {
	drive := &c.Drives[driveNum]
	if drive.Disk == nil {
		drive.Phase160 = phase160
		return
	}
	oldLen := drive.CurrentLen()
	drive.Phase160 = phase160
	newLen := drive.CurrentLen()
	drive.Disk.Rescale(oldLen, newLen)
}

// Tick advances the controller by one full CPU cycle. The LSS runs at
// twice the CPU clock so it pulses twice; the deferred-action queue runs
// at the CPU's own rate, advancing on every other LSS clock.
func (c *Controller) Tick() {
	c.step()
	c.step()
}

func (c *Controller) step() {
	if c.clock%2 == 0 {
		c.Sched.Tick()
	}
	drive := c.current()
	var track lss.Track
	if drive.Disk != nil {
		track = drive.Disk
	}
	c.Engine.OnPulse(c.Q6, c.Q7, c.motorOn(), drive.Phase160, track)
	c.latch = c.Engine.Latch
	c.clock++
}
