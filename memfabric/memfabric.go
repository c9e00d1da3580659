// Package memfabric implements the Apple IIe's bank-switched memory map:
// main/auxiliary 64K RAM banks, the soft-switch-controlled routing of zero
// page, text page 1 and hires page 1 between them, the language card's
// bank-switched RAM at $D000-$FFFF, peripheral-card ROM routing for
// $C100-$CFFF (including the unreadable $C800-$CFFF expansion latch), and
// the $C000-$C0FF I/O page itself. Fabric satisfies memory.Bank's
// Read/Write/PowerOn/Parent/DatabusVal contract so the cpu package drives
// it directly; every access falls through one address-range-masked
// dispatch tree.
//
// The system ROM is held inside the main RAM array itself ($C000-$FFFF)
// and peripheral-card ROM inside the aux array ($C100-$CFFF): the decode
// logic then only has to pick an array and an optional language-card
// overlay, never a third ROM store. Writes to those regions are dropped
// by the dispatch, so the "ROM" stays read-only from the bus's view.
package memfabric

import (
	"math/rand"
	"time"

	"github.com/jchacon/apple2e/diskii"
	"github.com/jchacon/apple2e/memory"
	"github.com/jchacon/apple2e/smartport"
	"github.com/jchacon/apple2e/softswitch"
)

const (
	textPage1Start  = 0x0400
	textPage1End    = 0x0800
	hiresPage1Start = 0x2000
	hiresPage1End   = 0x4000

	keyboardData   = 0xc000
	keyboardStrobe = 0xc010

	lcStart   = 0xd000
	lcBankEnd = 0xe000
)

// Fabric is the top-level Apple IIe memory map. It satisfies memory.Bank so
// the cpu package can drive it directly as the CPU's Ram.
type Fabric struct {
	// main holds main RAM below $C000 and the system ROM image above it.
	// aux holds auxiliary RAM below $C000 and peripheral-card ROM above.
	main [0x10000]byte
	aux  [0x10000]byte

	// Language card high RAM, indexed by side (0 = main, 1 = aux card,
	// selected by ALT_ZP): two private $D000-$DFFF banks plus the single
	// shared $E000-$FFFF region per side.
	lcBanks [2][2][0x1000]byte
	lcHigh  [2][0x2000]byte

	lcBank1       bool
	lcReadRAM     bool
	lcWriteEnable bool
	lcPrewrite    int

	Latches   *softswitch.Latches
	Disk      *diskii.Controller
	SmartPort *smartport.Port

	// OnSpeaker, when non-nil, fires on every $C030-$C03F access so an
	// audio collaborator can timestamp the click.
	OnSpeaker func()

	parent     memory.Bank
	databusVal uint8
}

// New returns a Fabric with the SmartPort slot empty; wire SmartPort in
// after construction if a block device is configured.
func New() *Fabric {
	return &Fabric{
		Latches: softswitch.New(),
		Disk:    diskii.New(),
	}
}

// LoadSystemROM installs the motherboard ROM image into main memory. A 16K
// image loads at $C000, a 12K image at $D000 (the $C100-$CFFF internal
// firmware stays zeroed in that case, which only matters when INTCXROM is
// set).
func (f *Fabric) LoadSystemROM(rom []byte) {
	switch len(rom) {
	case 0x4000:
		copy(f.main[0xc000:], rom)
	case 0x3000:
		copy(f.main[0xd000:], rom)
	default:
		// Load whatever was given against the top of the address space.
		if len(rom) < 0x10000 {
			copy(f.main[0x10000-len(rom):], rom)
		}
	}
}

// LoadCxROM installs a peripheral card's 256-byte firmware into slot n
// (1-7)'s $Cn00-$CnFF window, which lives in the aux array.
func (f *Fabric) LoadCxROM(slot int, rom []byte) {
	if slot < 1 || slot > 7 {
		return
	}
	copy(f.aux[0xc000+slot*0x100:0xc000+slot*0x100+0x100], rom)
}

// LoadExpansionROM installs a card's $C800-$CFFF expansion firmware into
// the aux array's shared 2K window.
func (f *Fabric) LoadExpansionROM(rom []byte) {
	n := len(rom)
	if n > 0x800 {
		n = 0x800
	}
	copy(f.aux[0xc800:0xc800+0x800], rom[:n])
}

// PowerOn randomizes both RAM banks below the ROM region, matching
// memory.ram's own cold-boot behavior, and resets every soft switch and
// language-card latch. ROM images loaded above $C000 survive, so a Reboot
// command doesn't need to reload them.
func (f *Fabric) PowerOn() {
	rand.Seed(time.Now().UnixNano())
	for i := 0; i < 0xc000; i++ {
		f.main[i] = uint8(rand.Intn(256))
		f.aux[i] = uint8(rand.Intn(256))
	}
	f.Latches.PowerOn()
	f.lcBank1 = false
	f.lcReadRAM = false
	f.lcWriteEnable = false
	f.lcPrewrite = 0
	f.Disk.PowerOn()
}

// SetForce writes val directly into main memory at addr, bypassing every
// soft switch, language-card bank and slot-ROM route the normal Write path
// consults. This is the debugger/file-load boundary (and how a host pokes
// the keyboard latch at $C000), never ordinary CPU execution.
func (f *Fabric) SetForce(addr uint16, val uint8) {
	f.main[addr] = val
}

// MainCopy returns a copy of the main 64K bank, safe for a reader
// goroutine to hold without racing the emulation thread's writes.
func (f *Fabric) MainCopy() [0x10000]byte {
	return f.main
}

// AuxCopy returns a copy of the auxiliary 64K bank.
func (f *Fabric) AuxCopy() [0x10000]byte {
	return f.aux
}

// Parent implements memory.Bank; Fabric is always the top of the chain.
func (f *Fabric) Parent() memory.Bank { return f.parent }

// DatabusVal implements memory.Bank.
func (f *Fabric) DatabusVal() uint8 { return f.databusVal }

// Read implements memory.Bank.
func (f *Fabric) Read(addr uint16) uint8 {
	val := f.getOrSet(addr, 0, true)
	f.databusVal = val
	return val
}

// Write implements memory.Bank.
func (f *Fabric) Write(addr uint16, val uint8) {
	f.databusVal = val
	f.getOrSet(addr, val, false)
}

// mainSide reports whether addr routes to the main array for a plain RAM
// access in $0200-$BFFF, per Sather 5-25: 80STORE overrides RAMRD/RAMWRT
// for text page 1 (and for hires page 1 when HIRES is also set), handing
// the choice to PAGE2 instead.
func (f *Fabric) mainSide(addr uint16, isWrite bool) bool {
	l := f.Latches
	isText := addr >= textPage1Start && addr < textPage1End
	isHires := addr >= hiresPage1Start && addr < hiresPage1End
	if isText && l.EightyStore {
		return !l.Page2
	}
	if isHires && l.EightyStore && l.Hires {
		return !l.Page2
	}
	if isWrite {
		return !l.WriteAuxMem
	}
	return !l.ReadAuxMem
}

// getOrSet is the single decode tree both Read and Write fail through,
// shaped like the Disk II controller's own even/odd dispatch: every
// address lands in exactly one arm, and arms that model floating-bus
// behavior return whatever main memory holds at that address.
func (f *Fabric) getOrSet(addr uint16, value uint8, read bool) uint8 {
	l := f.Latches
	l.NoteSlotAccess(addr)
	write := !read

	switch {
	case addr < 0x0200:
		// Zero page and stack follow ALT_ZP.
		if l.AltZP {
			if write {
				f.aux[addr] = value
				return 0
			}
			return f.aux[addr]
		}
		if write {
			f.main[addr] = value
			return 0
		}
		return f.main[addr]

	case addr < 0xc000:
		if f.mainSide(addr, write) {
			if write {
				f.main[addr] = value
				return 0
			}
			return f.main[addr]
		}
		if write {
			f.aux[addr] = value
			return 0
		}
		return f.aux[addr]

	case addr == keyboardData:
		if write {
			l.EightyStore = false
			return 0
		}
		return f.main[keyboardData]

	case addr == keyboardStrobe:
		// Any access clears the keyboard strobe (bit 7 of $C000).
		f.main[keyboardData] &= 0x7f
		return f.main[keyboardData]

	case addr >= 0xc001 && addr <= 0xc00f:
		if write {
			set := addr&1 == 1
			switch addr &^ 1 {
			case 0xc000:
				l.EightyStore = set
			case 0xc002:
				l.ReadAuxMem = set
			case 0xc004:
				l.WriteAuxMem = set
			case 0xc006:
				l.IntCxRom = set
			case 0xc008:
				l.AltZP = set
			case 0xc00a:
				l.SlotC3Rom = set
			case 0xc00c:
				l.EightyColumns = set
			case 0xc00e:
				l.AltCharSet = set
			}
			return 0
		}
		return f.main[addr]

	case addr == 0xc011:
		// Reading "bank 2 selected" status.
		return softswitch.Status(!f.lcBank1)
	case addr == 0xc012:
		return softswitch.Status(f.lcReadRAM)
	case addr == 0xc013:
		return softswitch.Status(l.ReadAuxMem)
	case addr == 0xc014:
		return softswitch.Status(l.WriteAuxMem)
	case addr == 0xc015:
		return softswitch.Status(l.IntCxRom)
	case addr == 0xc016:
		return softswitch.Status(l.AltZP)
	case addr == 0xc017:
		return softswitch.Status(l.SlotC3Rom)
	case addr == 0xc018:
		return softswitch.Status(l.EightyStore)
	case addr == 0xc019:
		return l.ReadVBL()
	case addr == 0xc01a:
		return softswitch.Status(l.Text)
	case addr == 0xc01b:
		return softswitch.Status(l.Mixed)
	case addr == 0xc01c:
		return softswitch.Status(l.Page2)
	case addr == 0xc01d:
		return softswitch.Status(l.Hires)
	case addr == 0xc01e:
		return softswitch.Status(l.AltCharSet)
	case addr == 0xc01f:
		return softswitch.Status(l.EightyColumns)

	case addr >= 0xc030 && addr <= 0xc03f:
		if f.OnSpeaker != nil {
			f.OnSpeaker()
		}
		return f.main[addr]

	case addr >= 0xc050 && addr <= 0xc057:
		// Video mode toggles flip on any access, reads included.
		set := addr&1 == 1
		switch addr &^ 1 {
		case 0xc050:
			l.Text = set
		case 0xc052:
			l.Mixed = set
		case 0xc054:
			l.Page2 = set
		case 0xc056:
			l.Hires = set
		}
		return f.main[addr]

	case addr == 0xc05e || addr == 0xc05f:
		// AN3, which doubles as the double-hires F1/F2 shift register
		// clock: $C05E clears the annunciator, $C05F sets it.
		l.AN3 = addr == 0xc05f
		l.UpdateAN3(addr)
		return 0

	case addr == 0xc07e:
		if read {
			return softswitch.Status(l.IOUDisabled)
		}
		l.IOUDisabled = true
		return 0
	case addr == 0xc07f:
		if write {
			l.IOUDisabled = false
		}
		return 0

	case addr >= 0xc080 && addr <= 0xc08f:
		f.noteLCSwitch(addr, read)
		return f.main[addr]

	case addr >= 0xc0e0 && addr <= 0xc0ef:
		return f.Disk.GetOrSet(read, addr, value)

	case addr == 0xc0f8:
		if f.SmartPort != nil && read {
			return f.SmartPort.NextByte(f.smartPortBlock())
		}
		return 0

	case addr >= 0xc100 && addr <= 0xcffe:
		return f.readCxROM(addr, read)

	case addr >= lcStart:
		return f.languageCard(addr, value, read)
	}

	// Remaining $C0xx soft-switch holes ($C020-$C02F, $CFFF and friends)
	// read the main array, write nowhere.
	if read {
		return f.main[addr]
	}
	return 0
}

// smartPortBlock reads the 16-bit little-endian block number a program
// wants streamed from zero page $46/$47, honoring ALT_ZP the same way the
// CPU's own zero-page access would.
func (f *Fabric) smartPortBlock() int {
	if f.Latches.AltZP {
		return int(f.aux[smartport.ZPBlockPtr]) | int(f.aux[smartport.ZPBlockPtr+1])<<8
	}
	return int(f.main[smartport.ZPBlockPtr]) | int(f.main[smartport.ZPBlockPtr+1])<<8
}

// readCxROM resolves $C100-$CFFE per Sather's table 5-28 over
// (INTCXROM, SLOTC3ROM), with the unreadable INTC8ROM latch pinning
// $C800-$CFFE to motherboard ROM once a $C3xx access armed it. Internal
// firmware lives in the main array, card firmware in aux.
func (f *Fabric) readCxROM(addr uint16, read bool) uint8 {
	if !read {
		return 0
	}
	l := f.Latches
	slot := int((addr >> 8) & 0xf)
	var internal bool
	switch {
	case l.IntCxRom:
		internal = true
	case slot >= 8 && l.SlotC8Status():
		internal = true
	case slot == 3 && !l.SlotC3Rom:
		internal = true
	}
	if internal {
		return f.main[addr]
	}
	return f.aux[addr]
}

// languageCard handles $D000-$FFFF: the banked RAM overlay when the
// $C080-$C08F switches enabled it, ROM (the main array) otherwise. The
// ALT_ZP switch picks which side's high RAM is in play, mirroring the
// aux card's own bank of language-card RAM.
func (f *Fabric) languageCard(addr uint16, value uint8, read bool) uint8 {
	side := 0
	if f.Latches.AltZP {
		side = 1
	}
	bank := 0
	if f.lcBank1 {
		bank = 1
	}
	if read {
		if !f.lcReadRAM {
			return f.main[addr]
		}
		if addr < lcBankEnd {
			return f.lcBanks[side][bank][addr-lcStart]
		}
		return f.lcHigh[side][addr-lcBankEnd]
	}
	if !f.lcWriteEnable {
		return 0
	}
	if addr < lcBankEnd {
		f.lcBanks[side][bank][addr-lcStart] = value
	} else {
		f.lcHigh[side][addr-lcBankEnd] = value
	}
	return 0
}

// noteLCSwitch decodes a $C080-$C08F access per Sather table 5.5: the low
// nibble picks bank and read-enable, while write-enable needs two
// consecutive odd-address reads (the prewrite counter). Any even-address
// access drops write-enable; an even access or any write resets the
// prewrite count without disturbing an already-latched write-enable,
// since the standard unlock idiom (LDA $C08B twice, then STA into high
// RAM) depends on writes not relocking it.
func (f *Fabric) noteLCSwitch(addr uint16, read bool) {
	odd := addr&1 == 1
	if odd && read && f.lcPrewrite < 3 {
		f.lcPrewrite++
		if f.lcPrewrite >= 2 {
			f.lcWriteEnable = true
		}
	}
	if !odd {
		f.lcWriteEnable = false
	}
	if !odd || !read {
		f.lcPrewrite = 0
	}

	f.lcBank1 = addr&0x08 != 0

	switch addr & 0x03 {
	case 0, 3:
		f.lcReadRAM = true
	default:
		f.lcReadRAM = false
	}
}
