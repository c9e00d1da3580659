package softswitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	assert.Equal(t, StatusSet, Status(true))
	assert.Equal(t, StatusClear, Status(false))
}

func TestReadVBLAlternates(t *testing.T) {
	l := New()
	assert.Equal(t, uint8(0x00), l.ReadVBL())
	assert.Equal(t, uint8(0x80), l.ReadVBL())
	assert.Equal(t, uint8(0x00), l.ReadVBL())
}

func TestSlotC8Latch(t *testing.T) {
	l := New()
	assert.False(t, l.SlotC8Status())

	l.NoteSlotAccess(0xc345)
	assert.True(t, l.SlotC8Status(), "a $C3xx access with SLOTC3ROM reset arms the latch")

	l.NoteSlotAccess(0xcfff)
	assert.False(t, l.SlotC8Status(), "$CFFF releases it")

	// With SLOTC3ROM set, $C3xx accesses no longer arm it.
	l.SlotC3Rom = true
	l.NoteSlotAccess(0xc300)
	assert.False(t, l.SlotC8Status())
}

func TestUpdateAN3ShiftRegister(t *testing.T) {
	l := New()
	l.UpdateAN3(0xc05e)
	l.UpdateAN3(0xc05f)
	assert.Equal(t, uint8(1), l.RGBMode(), "80COL clear shifts in a 1")

	l.UpdateAN3(0xc05e)
	l.UpdateAN3(0xc05f)
	assert.Equal(t, uint8(3), l.RGBMode())

	l.EightyColumns = true
	l.UpdateAN3(0xc05e)
	l.UpdateAN3(0xc05f)
	assert.Equal(t, uint8(2), l.RGBMode(), "80COL set shifts in a 0")

	// A $C05F with no preceding $C05E doesn't clock the register.
	l.UpdateAN3(0xc05f)
	assert.Equal(t, uint8(2), l.RGBMode())
}

func TestPowerOnClearsEverything(t *testing.T) {
	l := New()
	l.Text = true
	l.EightyStore = true
	l.NoteSlotAccess(0xc300)
	l.ReadVBL()
	l.PowerOn()
	assert.False(t, l.Text)
	assert.False(t, l.EightyStore)
	assert.False(t, l.SlotC8Status())
	assert.Equal(t, uint8(0), l.ReadVBL())
}
