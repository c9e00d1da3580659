// Package lss implements the Disk II card's Logic State Sequencer: a
// 256-entry state-transition ROM (Sather's table 9.3, "Beneath Apple
// ProDOS" pages D-6/D-7) that drives the read/write shift latch one LSS
// clock at a time.
package lss

import "math/rand"

// p6 is the literal 256-byte P6 state-transition ROM, transcribed from
// Sather's published table rather than re-derived, since any
// transcription error here silently corrupts every disk read/write.
var p6 = [256]uint8{
	0x18, 0x18, 0x18, 0x18, 0x0A, 0x0A, 0x0A, 0x0A, 0x18, 0x18, 0x18, 0x18, 0x18, 0x18, 0x18, 0x18,
	0x2D, 0x2D, 0x38, 0x38, 0x0A, 0x0A, 0x0A, 0x0A, 0x28, 0x28, 0x28, 0x28, 0x28, 0x28, 0x28, 0x28,
	0xD8, 0x38, 0x08, 0x28, 0x0A, 0x0A, 0x0A, 0x0A, 0x39, 0x39, 0x3b, 0x3b, 0x39, 0x39, 0x3B, 0x3B,
	0xD8, 0x48, 0x48, 0x48, 0x0A, 0x0A, 0x0A, 0x0A, 0x48, 0x48, 0x48, 0x48, 0x48, 0x48, 0x48, 0x48,
	0xD8, 0x58, 0xD8, 0x58, 0x0A, 0x0A, 0x0A, 0x0A, 0x58, 0x58, 0x58, 0x58, 0x58, 0x58, 0x58, 0x58,
	0xD8, 0x68, 0xD8, 0x68, 0x0A, 0x0A, 0x0A, 0x0A, 0x68, 0x68, 0x68, 0x68, 0x68, 0x68, 0x68, 0x68,
	0xD8, 0x78, 0xD8, 0x78, 0x0A, 0x0A, 0x0A, 0x0A, 0x78, 0x78, 0x78, 0x78, 0x78, 0x78, 0x78, 0x78,
	0xD8, 0x88, 0xD8, 0x88, 0x0A, 0x0A, 0x0A, 0x0A, 0x08, 0x88, 0x08, 0x88, 0x08, 0x88, 0x08, 0x88,
	0xD8, 0x98, 0xD8, 0x98, 0x0A, 0x0A, 0x0A, 0x0A, 0x98, 0x98, 0x98, 0x98, 0x98, 0x98, 0x98, 0x98,
	0xD8, 0x29, 0xD8, 0xA8, 0x0A, 0x0A, 0x0A, 0x0A, 0xA8, 0xA8, 0xA8, 0xA8, 0xA8, 0xA8, 0xA8, 0xA8,
	0xCD, 0xBD, 0xD8, 0xB8, 0x0A, 0x0A, 0x0A, 0x0A, 0xB9, 0xB9, 0xBB, 0xBB, 0xB9, 0xB9, 0xBB, 0xBB,
	0xD9, 0x59, 0xD8, 0xC8, 0x0A, 0x0A, 0x0A, 0x0A, 0xC8, 0xC8, 0xC8, 0xC8, 0xC8, 0xC8, 0xC8, 0xC8,
	0xD9, 0xD9, 0xD8, 0xA0, 0x0A, 0x0A, 0x0A, 0x0A, 0xD8, 0xD8, 0xD8, 0xD8, 0xD8, 0xD8, 0xD8, 0xD8,
	0xD8, 0x08, 0xE8, 0xE8, 0x0A, 0x0A, 0x0A, 0x0A, 0xE8, 0xE8, 0xE8, 0xE8, 0xE8, 0xE8, 0xE8, 0xE8,
	0xFD, 0xFD, 0xF8, 0xF8, 0x0A, 0x0A, 0x0A, 0x0A, 0xF8, 0xF8, 0xF8, 0xF8, 0xF8, 0xF8, 0xF8, 0xF8,
	0xDD, 0x4D, 0xE0, 0xE0, 0x0A, 0x0A, 0x0A, 0x0A, 0x88, 0x08, 0x88, 0x08, 0x88, 0x08, 0x88, 0x08,
}

// Track is the minimal bit source the LSS needs: one bit at a time from
// the currently selected drive's track, at the given quarter-track phase.
// Writing happens outside the sequencer, at the controller's Q6L/Q7H
// write-load path, so only reads flow through here.
type Track interface {
	NextBit(phase160 int) int
}

// Engine runs the P6 state machine. The zero value is ready to use.
type Engine struct {
	clock int
	state uint8
	zeros int

	// Latch is the 8-bit shift/read register; exposed directly since the
	// disk controller reads it every cycle. The controller, not the engine,
	// holds the byte written at $C08D/$C08F, which is why the LD command
	// below has nothing to do.
	Latch uint8
}

// Reset clears the shift-register's top bit and returns the state machine
// to state 0, mirroring the Q6-high ($C08D) side effect.
func (e *Engine) Reset() {
	e.Latch &= 0x7F
	e.state = 0
}

// OnPulse advances the LSS one clock. With the motor off, or with no track
// under the head, it does nothing: the clock, state and latch keep their
// values and no track bit is consumed.
func (e *Engine) OnPulse(q6, q7, motorOn bool, phase160 int, track Track) {
	if !motorOn || track == nil {
		return
	}
	e.step(q6, q7, phase160, track)
}

func (e *Engine) step(q6, q7 bool, phase160 int, track Track) {
	pulse := 0
	if e.clock == 4 && !q7 && !q6 {
		pulse = track.NextBit(phase160)
		if pulse == 0 {
			// Just need to know there were more than 2 zeros in a row, no
			// point saturating the counter.
			if e.zeros < 10 {
				e.zeros++
			}
			if e.zeros > 2 {
				if rand.Float32() < 0.3 {
					pulse = 1
				} else {
					pulse = 0
				}
			}
		} else {
			e.zeros = 0
		}
	}

	qa := (e.Latch & 0x80) != 0
	idx := uint8(0)
	if pulse == 0 {
		idx |= 1
	}
	if qa {
		idx |= 2
	}
	if q6 {
		idx |= 4
	}
	if q7 {
		idx |= 8
	}
	idx |= e.state << 4

	command := p6[idx]
	switch command & 0xf {
	case 0, 1, 2, 3, 4, 5, 6, 7:
		// CLR
		e.Latch = 0
	case 8, 0xc:
		// NOP
	case 9:
		// SLO
		e.Latch <<= 1
	case 0xa, 0xe:
		// SR: shifting right always feeds in the write-protect bit (0x80).
		e.Latch = (e.Latch >> 1) + 0x80
	case 0xb, 0xf:
		// LD: the write-load byte is captured directly by the controller's
		// $C08D/$C08F handling, nothing to do here.
	case 0xd:
		// SL1
		e.Latch = (e.Latch << 1) | 1
	}
	e.state = command >> 4
	e.clock = (e.clock + 1) % 8
}
