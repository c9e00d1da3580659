package memfabric

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dAddr = uint16(0xd1cb)
	fAddr = uint16(0xfe1f)
)

// setupHighRAM builds a Fabric in the canonical language-card test state:
// ROM (main array) holds $53/$60 at the probe addresses, bank 1 holds $11,
// bank 2 holds $22, and the shared $E000-$FFFF region holds $33.
func setupHighRAM() *Fabric {
	f := New()
	f.main[dAddr] = 0x53
	f.main[fAddr] = 0x60
	f.lcBanks[0][1][dAddr-0xd000] = 0x11
	f.lcBanks[0][0][dAddr-0xd000] = 0x22
	f.lcHigh[0][fAddr-0xe000] = 0x33
	return f
}

func TestSoftSwitchStatusPairs(t *testing.T) {
	tests := []struct {
		name   string
		on     uint16
		off    uint16
		status uint16
	}{
		{"80STORE", 0xc001, 0xc000, 0xc018},
		{"RAMRD", 0xc003, 0xc002, 0xc013},
		{"RAMWRT", 0xc005, 0xc004, 0xc014},
		{"INTCXROM", 0xc007, 0xc006, 0xc015},
		{"ALTZP", 0xc009, 0xc008, 0xc016},
		{"SLOTC3ROM", 0xc00b, 0xc00a, 0xc017},
		{"80COL", 0xc00d, 0xc00c, 0xc01f},
		{"ALTCHAR", 0xc00f, 0xc00e, 0xc01e},
		{"TEXT", 0xc051, 0xc050, 0xc01a},
		{"MIXED", 0xc053, 0xc052, 0xc01b},
		{"PAGE2", 0xc055, 0xc054, 0xc01c},
		{"HIRES", 0xc057, 0xc056, 0xc01d},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := New()
			assert.Zero(t, f.Read(test.status)&0x80, "default should be off")
			f.Write(test.on, 0x80)
			assert.Equal(t, uint8(0x80), f.Read(test.status)&0x80, "status should read on")
			f.Write(test.off, 0x80)
			assert.Zero(t, f.Read(test.status)&0x80, "status should read off")
		})
	}
}

func TestVideoTogglesFlipOnRead(t *testing.T) {
	f := New()
	f.Read(0xc055)
	assert.True(t, f.Latches.Page2, "reading $C055 must set PAGE2")
	f.Read(0xc054)
	assert.False(t, f.Latches.Page2, "reading $C054 must clear PAGE2")
}

// access is one step of a language-card fingerprint: an address plus
// whether it's driven as a read or a write cycle.
type access struct {
	addr uint16
	read bool
}

func r(addr uint16) access { return access{addr, true} }
func w(addr uint16) access { return access{addr, false} }

func TestHighRAMFingerprints(t *testing.T) {
	tests := []struct {
		accesses []access
		expected [5]uint8
	}{
		{[]access{r(0xc088)}, [5]uint8{0x11, 0x33, 0x11, 0x22, 0x33}},
		{[]access{r(0xc080)}, [5]uint8{0x22, 0x33, 0x11, 0x22, 0x33}},
		{[]access{r(0xc081)}, [5]uint8{0x53, 0x60, 0x11, 0x22, 0x33}},
		{[]access{r(0xc081), r(0xc089)}, [5]uint8{0x53, 0x60, 0x54, 0x22, 0x61}},
		{[]access{r(0xc081), r(0xc081)}, [5]uint8{0x53, 0x60, 0x11, 0x54, 0x61}},
		{[]access{r(0xc081), r(0xc081), w(0xc081)}, [5]uint8{0x53, 0x60, 0x11, 0x54, 0x61}},
		{[]access{r(0xc081), r(0xc081), r(0xc081), r(0xc081)}, [5]uint8{0x53, 0x60, 0x11, 0x54, 0x61}},
		{[]access{r(0xc08b)}, [5]uint8{0x11, 0x33, 0x11, 0x22, 0x33}},
		{[]access{r(0xc083)}, [5]uint8{0x22, 0x33, 0x11, 0x22, 0x33}},
		{[]access{r(0xc08b), r(0xc08b)}, [5]uint8{0x12, 0x34, 0x12, 0x22, 0x34}},
		{[]access{r(0xc08f), r(0xc087)}, [5]uint8{0x23, 0x34, 0x11, 0x23, 0x34}},
		{[]access{r(0xc087), r(0xc08d)}, [5]uint8{0x53, 0x60, 0x54, 0x22, 0x61}},
		{[]access{r(0xc08b), w(0xc08b), r(0xc08b)}, [5]uint8{0x11, 0x33, 0x11, 0x22, 0x33}},
		{[]access{w(0xc08b), w(0xc08b), r(0xc08b)}, [5]uint8{0x11, 0x33, 0x11, 0x22, 0x33}},
		{[]access{r(0xc083), r(0xc083)}, [5]uint8{0x23, 0x34, 0x11, 0x23, 0x34}},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("case%d", i), func(t *testing.T) {
			f := setupHighRAM()
			for _, a := range test.accesses {
				if a.read {
					f.Read(a.addr)
				} else {
					f.Write(a.addr, 0)
				}
			}
			old := f.Read(dAddr)
			f.Write(dAddr, old+1)
			old2 := f.Read(fAddr)
			f.Write(fAddr, old2+1)

			assert.Equal(t, test.expected[0], f.Read(dAddr), "read $D1CB")
			assert.Equal(t, test.expected[1], f.Read(fAddr), "read $FE1F")
			assert.Equal(t, test.expected[2], f.lcBanks[0][1][dAddr-0xd000], "bank 1")
			assert.Equal(t, test.expected[3], f.lcBanks[0][0][dAddr-0xd000], "bank 2")
			assert.Equal(t, test.expected[4], f.lcHigh[0][fAddr-0xe000], "high RAM")
		})
	}
}

func TestLanguageCardWrite(t *testing.T) {
	f := New()
	f.Read(0xc08b)
	f.Read(0xc08b)
	f.Write(dAddr, 0x44)
	require.Equal(t, uint8(0x44), f.Read(dAddr))
}

func TestLanguageCardAltZPSide(t *testing.T) {
	f := New()
	f.Read(0xc08b)
	f.Read(0xc08b)
	f.Write(dAddr, 0x44)
	// Flip to the aux card's high RAM: same switches, different bytes.
	f.Write(0xc009, 0)
	assert.NotEqual(t, uint8(0x44), f.Read(dAddr))
	f.Write(dAddr, 0x55)
	assert.Equal(t, uint8(0x55), f.Read(dAddr))
	f.Write(0xc008, 0)
	assert.Equal(t, uint8(0x44), f.Read(dAddr))
}

func TestAuxMemoryRouting(t *testing.T) {
	f := New()
	f.main[0x1000] = 0xaa

	// RAMWRT routes writes aux-side while RAMRD still reads main.
	f.Write(0xc005, 0)
	f.Write(0x1000, 0xbb)
	assert.Equal(t, uint8(0xaa), f.Read(0x1000), "read should still hit main")
	f.Write(0xc003, 0)
	assert.Equal(t, uint8(0xbb), f.Read(0x1000), "read should now hit aux")
	f.Write(0xc002, 0)
	f.Write(0xc004, 0)
	assert.Equal(t, uint8(0xaa), f.Read(0x1000))
}

func TestAltZPRouting(t *testing.T) {
	f := New()
	f.main[0x0080] = 0x12
	f.aux[0x0080] = 0x34
	assert.Equal(t, uint8(0x12), f.Read(0x0080))
	f.Write(0xc009, 0)
	assert.Equal(t, uint8(0x34), f.Read(0x0080))
	f.Write(0x0080, 0x56)
	assert.Equal(t, uint8(0x56), f.aux[0x0080], "write should land aux-side")
	f.Write(0xc008, 0)
	assert.Equal(t, uint8(0x12), f.Read(0x0080))
}

func TestEightyStoreTextPage(t *testing.T) {
	f := New()
	f.main[0x0400] = 0x01
	f.aux[0x0400] = 0x02

	// 80STORE set: PAGE2 picks the side regardless of RAMRD/RAMWRT.
	f.Write(0xc001, 0)
	assert.Equal(t, uint8(0x01), f.Read(0x0400))
	f.Read(0xc055)
	assert.Equal(t, uint8(0x02), f.Read(0x0400))
	f.Write(0x0400, 0x22)
	assert.Equal(t, uint8(0x22), f.aux[0x0400])
	f.Read(0xc054)
	assert.Equal(t, uint8(0x01), f.Read(0x0400))

	// Hires page 1 only follows PAGE2 when HIRES is also set.
	f.main[0x2000] = 0x03
	f.aux[0x2000] = 0x04
	f.Read(0xc055)
	assert.Equal(t, uint8(0x03), f.Read(0x2000), "without HIRES, RAMRD rules")
	f.Read(0xc057)
	assert.Equal(t, uint8(0x04), f.Read(0x2000), "80STORE+HIRES+PAGE2 goes aux")
}

func TestKeyboardStrobe(t *testing.T) {
	f := New()
	f.SetForce(0xc000, 0x81)
	assert.Equal(t, uint8(0x81), f.Read(0xc000))
	f.Read(0xc010)
	assert.Equal(t, uint8(0x01), f.Read(0xc000), "strobe access must clear bit 7")

	f.SetForce(0xc000, 0x81)
	f.Write(0xc010, 0)
	assert.Equal(t, uint8(0x01), f.Read(0xc000), "strobe write clears too")
}

func TestVBLToggles(t *testing.T) {
	f := New()
	first := f.Read(0xc019)
	second := f.Read(0xc019)
	third := f.Read(0xc019)
	assert.Equal(t, uint8(0x00), first)
	assert.Equal(t, uint8(0x80), second)
	assert.Equal(t, uint8(0x00), third)
}

func TestRGBModeShiftRegister(t *testing.T) {
	f := New()
	// 80COL clear: each $C05E->$C05F transition shifts in a 1.
	f.Read(0xc05e)
	f.Read(0xc05f)
	assert.Equal(t, uint8(1), f.Latches.RGBMode())
	f.Read(0xc05e)
	f.Read(0xc05f)
	assert.Equal(t, uint8(3), f.Latches.RGBMode())
	// 80COL set: shifts in a 0.
	f.Write(0xc00d, 0)
	f.Read(0xc05e)
	f.Read(0xc05f)
	assert.Equal(t, uint8(2), f.Latches.RGBMode())
	f.Read(0xc05e)
	f.Read(0xc05f)
	assert.Equal(t, uint8(0), f.Latches.RGBMode())
	// Out of order accesses don't clock the register.
	f.Read(0xc05f)
	f.Read(0xc05e)
	assert.Equal(t, uint8(0), f.Latches.RGBMode())
}

func TestCxROMRouting(t *testing.T) {
	f := New()
	f.main[0xc612] = 0x11
	f.aux[0xc612] = 0x22
	f.main[0xc345] = 0x33
	f.aux[0xc345] = 0x44
	f.main[0xc912] = 0x55
	f.aux[0xc912] = 0x66

	// INTCXROM reset: slots show card firmware, slot 3 shows internal.
	assert.Equal(t, uint8(0x22), f.Read(0xc612))
	assert.Equal(t, uint8(0x33), f.Read(0xc345))

	// SLOTC3ROM set hands slot 3 to the card.
	f.Write(0xc00b, 0)
	assert.Equal(t, uint8(0x44), f.Read(0xc345))
	f.Write(0xc00a, 0)

	// INTCXROM set pins the whole range to motherboard ROM.
	f.Write(0xc007, 0)
	assert.Equal(t, uint8(0x11), f.Read(0xc612))
	assert.Equal(t, uint8(0x33), f.Read(0xc345))
	f.Write(0xc006, 0)

	// The INTC8ROM latch: a $C3xx access with SLOTC3ROM reset pins
	// $C800-$CFFE to internal ROM until $CFFF releases it.
	require.True(t, f.Latches.SlotC8Status())
	assert.Equal(t, uint8(0x55), f.Read(0xc912))
	f.Read(0xcfff)
	require.False(t, f.Latches.SlotC8Status())
	assert.Equal(t, uint8(0x66), f.Read(0xc912))
}

func TestROMWritesIgnored(t *testing.T) {
	f := New()
	f.main[0xc612] = 0x11
	f.Write(0xc612, 0x99)
	assert.Equal(t, uint8(0x11), f.main[0xc612])

	f.main[0xe123] = 0x42
	f.Write(0xe123, 0x99)
	assert.Equal(t, uint8(0x42), f.Read(0xe123), "LC write disabled, ROM read")
}

func TestEveryAddressReads(t *testing.T) {
	f := New()
	// The fabric is total: no address may panic or fail to produce a byte.
	for addr := 0; addr <= 0xffff; addr++ {
		f.Read(uint16(addr))
	}
}

func TestSetForceBypassesSwitches(t *testing.T) {
	f := New()
	f.Write(0xc005, 0) // RAMWRT on
	f.SetForce(0x1234, 0x77)
	assert.Equal(t, uint8(0x77), f.main[0x1234], "SetForce always hits main")
	assert.Zero(t, f.aux[0x1234])
}
