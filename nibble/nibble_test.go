package nibble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchacon/apple2e/diskimage"
)

func bitsOf(nibbles ...byte) []byte {
	var out []byte
	for _, n := range nibbles {
		for i := 7; i >= 0; i-- {
			out = append(out, (n>>uint(i))&1)
		}
	}
	return out
}

func TestScanFindsAddressPrologue(t *testing.T) {
	bits := bitsOf(0xd5, 0xaa, 0x96, 0xff, 0xfe, 0xaa, 0xaa, 0xaa, 0xaa)
	fields := Scan(bits)
	require.NotEmpty(t, fields)
	assert.Equal(t, AddressPrologue, fields[0].Kind)
	assert.Equal(t, 0, fields[0].BitPos)
}

func TestScanDecodesAddressContent(t *testing.T) {
	vo, ve := diskimage.Encode4and4(0xfe)
	to, te := diskimage.Encode4and4(17)
	so, se := diskimage.Encode4and4(9)
	co, ce := diskimage.Encode4and4(0xfe ^ 17 ^ 9)
	bits := bitsOf(0xd5, 0xaa, 0x96, vo, ve, to, te, so, se, co, ce, 0xde, 0xaa, 0xeb)

	fields := Scan(bits)
	var content *Field
	for i := range fields {
		if fields[i].Kind == AddressContent {
			content = &fields[i]
			break
		}
	}
	require.NotNil(t, content)
	assert.Equal(t, 17, content.Track)
	assert.Equal(t, 9, content.Sector)

	epilogue := false
	for _, f := range fields {
		if f.Kind == AddressEpilogue {
			epilogue = true
		}
	}
	assert.True(t, epilogue)
}

func TestClassifyStandardTrack(t *testing.T) {
	image := make([]byte, diskimage.DskSizeBytes)
	d, err := diskimage.NewDsk(image, false, "blank")
	require.NoError(t, err)
	stream, ok := d.Streams.StreamFor(0)
	require.True(t, ok)
	assert.Equal(t, Standard, Classify(stream.Bits))
}

func TestClassifyEmptyTrack(t *testing.T) {
	assert.Equal(t, Empty, Classify(make([]byte, 4096)))
}

func TestClassifyNonstandardTrack(t *testing.T) {
	vo, ve := diskimage.Encode4and4(0xfe)
	to, te := diskimage.Encode4and4(0)
	so, se := diskimage.Encode4and4(5)
	co, ce := diskimage.Encode4and4(0xfe ^ 0 ^ 5)
	bits := bitsOf(0xd5, 0xaa, 0x96, vo, ve, to, te, so, se, co, ce, 0xde, 0xaa, 0xeb)
	assert.Equal(t, Nonstandard, Classify(bits))
}

func TestSectorTracker(t *testing.T) {
	var s SectorTracker
	_, _, ok := s.Position()
	assert.False(t, ok)

	feed44 := func(v byte) {
		a, b := diskimage.Encode4and4(v)
		s.Feed(a)
		s.Feed(b)
	}

	// Noise before the prologue is ignored.
	s.Feed(0xff)
	s.Feed(0xab)
	s.Feed(0xd5)
	s.Feed(0xaa)
	s.Feed(0x96)
	feed44(0xfe) // volume
	feed44(12)   // track
	feed44(3)    // sector

	track, sector, ok := s.Position()
	require.True(t, ok)
	assert.Equal(t, byte(12), track)
	assert.Equal(t, byte(3), sector)
	assert.Equal(t, byte(0xfe), s.Volume)

	// A second field updates the published position.
	s.Feed(0xd5)
	s.Feed(0xaa)
	s.Feed(0x96)
	feed44(0xfe)
	feed44(12)
	feed44(4)
	_, sector, _ = s.Position()
	assert.Equal(t, byte(4), sector)
}
