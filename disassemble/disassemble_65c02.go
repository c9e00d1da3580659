package disassemble

import (
	"fmt"

	"github.com/jchacon/apple2e/memory"
)

const (
	kMODE_ZPINDIRECT = iota + 100
	kMODE_ABSOLUTEINDEXEDINDIRECT
	kMODE_ACCUMULATOR
	kMODE_BITBRANCH
)

var bbrbbsMnemonic = [16]string{
	"BBR0", "BBR1", "BBR2", "BBR3", "BBR4", "BBR5", "BBR6", "BBR7",
	"BBS0", "BBS1", "BBS2", "BBS3", "BBS4", "BBS5", "BBS6", "BBS7",
}

var rmbsmbMnemonic = [16]string{
	"RMB0", "RMB1", "RMB2", "RMB3", "RMB4", "RMB5", "RMB6", "RMB7",
	"SMB0", "SMB1", "SMB2", "SMB3", "SMB4", "SMB5", "SMB6", "SMB7",
}

// cmosOverride returns the mnemonic and mode for the 65C02 opcodes the
// NMOS table in disassemble.go doesn't know about (it repurposes the slots
// that were undocumented opcodes on NMOS), and false for anything it
// should leave to the shared table.
func cmosOverride(o uint8) (string, int, bool) {
	switch {
	case o == 0x02 || o == 0x22 || o == 0x42 || o == 0x62:
		return "NOP", kMODE_IMMEDIATE, true
	case o&0x0f == 0x03 || o&0x0f == 0x0b:
		// NMOS undocumented combos; all single-byte NOPs on CMOS.
		return "NOP", kMODE_IMPLIED, true
	case o == 0x04:
		return "TSB", kMODE_ZP, true
	case o == 0x0c:
		return "TSB", kMODE_ABSOLUTE, true
	case o&0x0f == 0x0f:
		idx := o >> 4
		return bbrbbsMnemonic[idx], kMODE_BITBRANCH, true
	case o&0x0f == 0x07:
		idx := o >> 4
		return rmbsmbMnemonic[idx], kMODE_ZP, true
	case o == 0x12:
		return "ORA", kMODE_ZPINDIRECT, true
	case o == 0x32:
		return "AND", kMODE_ZPINDIRECT, true
	case o == 0x52:
		return "EOR", kMODE_ZPINDIRECT, true
	case o == 0x72:
		return "ADC", kMODE_ZPINDIRECT, true
	case o == 0x92:
		return "STA", kMODE_ZPINDIRECT, true
	case o == 0xb2:
		return "LDA", kMODE_ZPINDIRECT, true
	case o == 0xd2:
		return "CMP", kMODE_ZPINDIRECT, true
	case o == 0xf2:
		return "SBC", kMODE_ZPINDIRECT, true
	case o == 0x14:
		return "TRB", kMODE_ZP, true
	case o == 0x1c:
		return "TRB", kMODE_ABSOLUTE, true
	case o == 0x1a:
		return "INC", kMODE_ACCUMULATOR, true
	case o == 0x34:
		return "BIT", kMODE_ZPX, true
	case o == 0x3a:
		return "DEC", kMODE_ACCUMULATOR, true
	case o == 0x3c:
		return "BIT", kMODE_ABSOLUTEX, true
	case o == 0x5a:
		return "PHY", kMODE_IMPLIED, true
	case o == 0xda:
		return "PHX", kMODE_IMPLIED, true
	case o == 0x64:
		return "STZ", kMODE_ZP, true
	case o == 0x74:
		return "STZ", kMODE_ZPX, true
	case o == 0x9c:
		return "STZ", kMODE_ABSOLUTE, true
	case o == 0x9e:
		return "STZ", kMODE_ABSOLUTEX, true
	case o == 0x7a:
		return "PLY", kMODE_IMPLIED, true
	case o == 0xfa:
		return "PLX", kMODE_IMPLIED, true
	case o == 0x7c:
		return "JMP", kMODE_ABSOLUTEINDEXEDINDIRECT, true
	case o == 0x80:
		return "BRA", kMODE_RELATIVE, true
	case o == 0x89:
		return "BIT", kMODE_IMMEDIATE, true
	}
	return "", 0, false
}

// StepCMOS is the 65C02 analogue of Step: it overrides the handful of
// opcodes the NMOS table repurposes for 65C02-only instructions, and
// otherwise delegates straight to Step.
func StepCMOS(pc uint16, r memory.Ram) (string, int) {
	o := r.Read(pc)
	op, mode, ok := cmosOverride(o)
	if !ok {
		return Step(pc, r)
	}

	pc1 := r.Read(pc + 1)
	pc116 := uint16(int16(int8(pc1)))
	pc2 := r.Read(pc + 2)

	count := 2
	out := fmt.Sprintf("%.4X %.2X ", pc, o)
	switch mode {
	case kMODE_IMMEDIATE:
		out += fmt.Sprintf("%.2X      %s #%.2X       ", pc1, op, pc1)
	case kMODE_ZP:
		out += fmt.Sprintf("%.2X      %s %.2X        ", pc1, op, pc1)
	case kMODE_ZPX:
		out += fmt.Sprintf("%.2X      %s %.2X,X      ", pc1, op, pc1)
	case kMODE_ZPINDIRECT:
		out += fmt.Sprintf("%.2X      %s (%.2X)      ", pc1, op, pc1)
	case kMODE_ABSOLUTE:
		out += fmt.Sprintf("%.2X %.2X   %s %.2X%.2X      ", pc1, pc2, op, pc2, pc1)
		count++
	case kMODE_ABSOLUTEX:
		out += fmt.Sprintf("%.2X %.2X   %s %.2X%.2X,X    ", pc1, pc2, op, pc2, pc1)
		count++
	case kMODE_ABSOLUTEINDEXEDINDIRECT:
		out += fmt.Sprintf("%.2X %.2X   %s (%.2X%.2X,X)  ", pc1, pc2, op, pc2, pc1)
		count++
	case kMODE_ACCUMULATOR:
		out += fmt.Sprintf("        %s A         ", op)
		count--
	case kMODE_IMPLIED:
		out += fmt.Sprintf("        %s           ", op)
		count--
	case kMODE_RELATIVE:
		out += fmt.Sprintf("%.2X      %s %.2X (%.4X) ", pc1, op, pc1, pc+pc116+2)
	case kMODE_BITBRANCH:
		// zp address then branch offset: the branch target is relative to
		// the byte after the offset, same as a plain relative branch, just
		// with an extra operand byte ahead of it.
		off := r.Read(pc + 2)
		off16 := uint16(int16(int8(off)))
		out += fmt.Sprintf("%.2X %.2X   %s %.2X,%.2X (%.4X) ", pc1, off, op, pc1, off, pc+off16+3)
		count++
	default:
		panic(fmt.Sprintf("Invalid mode: %d", mode))
	}
	return out, count
}
