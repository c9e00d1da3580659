package diskimage

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDskImage builds a deterministic full 35-track image where every
// sector carries a distinct pattern keyed on (track, sector, offset).
func testDskImage() []byte {
	image := make([]byte, DskSizeBytes)
	for track := 0; track < MaxTrackDsk; track++ {
		for sector := 0; sector < 16; sector++ {
			base := track*TrackSizeBytes + sector*SectorSizeBytes
			for i := 0; i < SectorSizeBytes; i++ {
				image[base+i] = byte(track*31 + sector*7 + i)
			}
		}
	}
	return image
}

func TestNewDskRejectsBadSize(t *testing.T) {
	_, err := NewDsk(make([]byte, 1000), false, "short")
	require.Error(t, err)
}

func TestNewDskTrackMap(t *testing.T) {
	d, err := NewDsk(testDskImage(), false, "map")
	require.NoError(t, err)

	tm := d.Streams.TMap
	assert.Equal(t, uint8(0), tm[0])
	assert.Equal(t, uint8(0), tm[1])
	// Each full track is reachable from a quarter track either side.
	assert.Equal(t, uint8(1), tm[3])
	assert.Equal(t, uint8(1), tm[4])
	assert.Equal(t, uint8(1), tm[5])
	assert.Equal(t, uint8(34), tm[34*4])
	// Phases past track 34 (and tracks 35-39) are unformatted.
	assert.Equal(t, uint8(NoStream), tm[150])
	assert.Equal(t, uint8(NoStream), tm[159])

	for p := 0; p < MaxPhase; p++ {
		if tm[p] != NoStream {
			assert.Less(t, int(tm[p]), len(d.Streams.Streams), "tmap[%d]", p)
		}
	}
}

func TestDskSaveRoundTrip(t *testing.T) {
	image := testDskImage()
	d, err := NewDsk(image, false, "roundtrip")
	require.NoError(t, err)

	saved, err := d.Save()
	require.NoError(t, err)
	if diff := deep.Equal(image, saved); diff != nil {
		t.Fatalf("dsk round trip mismatch: %v", diff[:min(len(diff), 10)])
	}
}

func TestDiskBitAccess(t *testing.T) {
	d, err := NewDsk(testDskImage(), false, "bits")
	require.NoError(t, err)

	// The first synthesized bits are a 10-bit FF sync nibble.
	want := []int{1, 1, 1, 1, 1, 1, 1, 1, 0, 0}
	for i, bit := range want {
		assert.Equal(t, bit, d.NextBit(0), "bit %d", i)
	}

	// Position wraps modulo the stream length.
	stream, ok := d.Streams.StreamFor(0)
	require.True(t, ok)
	d.BitPosition = stream.Len() - 1
	d.NextBit(0)
	assert.Equal(t, 0, d.BitPosition)
}

func TestWriteBitRespectsProtection(t *testing.T) {
	d, err := NewDsk(testDskImage(), true, "protected")
	require.NoError(t, err)
	d.WriteBit(0, 1)
	assert.False(t, d.Dirty, "write-protected disk must not dirty")

	d.WriteProtected = false
	d.WriteBit(0, 1)
	assert.True(t, d.Dirty)
}

func TestRescale(t *testing.T) {
	d := &Disk{BitPosition: 500}
	d.Rescale(1000, 2000)
	assert.Equal(t, 1000, d.BitPosition)
	d.Rescale(2000, 1000)
	assert.Equal(t, 500, d.BitPosition)
	d.Rescale(0, 1000)
	assert.Equal(t, 0, d.BitPosition)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
