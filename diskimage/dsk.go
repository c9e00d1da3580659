package diskimage

import "github.com/pkg/errors"

const (
	MaxPhase        = 160
	MaxTrack        = 40
	MaxTrackDsk     = 35
	SectorSizeBytes = 256
	TrackSizeBytes  = 4096
	DskSizeBytes    = 143360
	DataFieldSize   = 343
)

// bitWriter accumulates a track's serialized bit stream MSB-first, the way
// a real drive head would lay bits down.
type bitWriter struct {
	bits []byte
}

func (w *bitWriter) writeBit(b byte) {
	w.bits = append(w.bits, b&1)
}

func (w *bitWriter) write8(values ...byte) {
	for _, v := range values {
		for i := 7; i >= 0; i-- {
			w.writeBit((v >> uint(i)) & 1)
		}
	}
}

func (w *bitWriter) writeSync(count int) {
	for i := 0; i < count; i++ {
		w.write8(0xff)
		w.writeBit(0)
		w.writeBit(0)
	}
}

func (w *bitWriter) write4and4(value byte) {
	odd, even := Encode4and4(value)
	w.write8(odd, even)
}

// encodeTrack synthesizes one DOS 3.3 track's nibble stream from its 16
// logical 256-byte sectors: 16 sync bytes, then per physical sector an
// address field (D5 AA 96, 4-and-4 volume/track/sector/checksum, DE AA
// EB), 7 sync bytes, a data field (D5 AA AD, 343-nibble 6-and-2 payload,
// DE AA EB), and 16 trailing sync bytes.
func encodeTrack(trackData []byte, track int) []byte {
	w := &bitWriter{}
	w.writeSync(16)
	for sector := 0; sector < 16; sector++ {
		w.write8(0xd5, 0xaa, 0x96)
		w.write4and4(0xfe)
		w.write4and4(byte(track))
		w.write4and4(byte(sector))
		w.write4and4(0xfe ^ byte(track) ^ byte(sector))
		w.write8(0xde, 0xaa, 0xeb)
		w.writeSync(7)
		w.write8(0xd5, 0xaa, 0xad)

		var buf [256]byte
		logical := LogicalSectors[sector]
		copy(buf[:], trackData[logical*256:logical*256+256])
		encoded := Encode6and2(buf)
		w.write8(encoded[:]...)

		w.write8(0xde, 0xaa, 0xeb)
		w.writeSync(16)
	}
	return w.bits
}

// NewDsk synthesizes a BitStreams from a raw 35-track/16-sector/256-byte
// DOS 3.3 image: 35 addressable tracks plus 5 unformatted (random) tracks
// to fill out the drive's full quarter-track travel, and a track map
// mirroring a real drive's half-track landing tolerance (a head parked a
// quarter-track off a valid track still reads it).
func NewDsk(image []byte, writeProtected bool, title string) (*Disk, error) {
	if len(image) != DskSizeBytes {
		return nil, errors.Errorf("dsk image must be %d bytes, got %d", DskSizeBytes, len(image))
	}

	streams := &BitStreams{}
	for i := range streams.TMap {
		streams.TMap[i] = NoStream
	}

	for track := 0; track < MaxTrackDsk; track++ {
		start := track * SectorSizeBytes * 16
		bits := encodeTrack(image[start:start+SectorSizeBytes*16], track)
		streams.Streams = append(streams.Streams, BitStream{Bits: bits})
	}
	for i := 0; i < MaxPhase/4-MaxTrackDsk; i++ {
		streams.Streams = append(streams.Streams, BitStream{Random: true, Bits: make([]byte, TrackSizeBytes*8)})
	}

	streams.TMap[0] = 0
	streams.TMap[1] = 0
	track := 1
	for phase := 4; phase < MaxPhase-20; phase += 4 {
		streams.TMap[phase-1] = uint8(track)
		streams.TMap[phase] = uint8(track)
		if phase+1 < MaxPhase-1 {
			streams.TMap[phase+1] = uint8(track)
		}
		track++
	}

	return &Disk{
		Streams:        streams,
		WriteProtected: writeProtected,
		Title:          title,
	}, nil
}

// decodeTrackBits scans a track's raw bit stream for D5 AA 96 / D5 AA AD
// marker sequences and recovers (sector, data) pairs, used by
// Save to re-flatten a written-to nibble track back into logical sector
// order. It tolerates sync bits and garbage between fields, matching how
// a real DOS 3.3 read routine scans for sync.
func decodeTrackBits(bits []byte) map[int][256]byte {
	sectors := make(map[int][256]byte)
	readByte := func(pos int) (byte, bool) {
		if pos+8 > len(bits) {
			return 0, false
		}
		var b byte
		for i := 0; i < 8; i++ {
			b = (b << 1) | bits[pos+i]
		}
		return b, true
	}

	for pos := 0; pos+24 <= len(bits); pos++ {
		b0, ok0 := readByte(pos)
		b1, ok1 := readByte(pos + 8)
		b2, ok2 := readByte(pos + 16)
		if !ok0 || !ok1 || !ok2 {
			continue
		}
		if b0 != 0xd5 || b1 != 0xaa {
			continue
		}
		if b2 == 0xad {
			// Data field: 343 encoded nibbles follow.
			p := pos + 24
			var encoded [343]byte
			fail := false
			for i := 0; i < 343; i++ {
				v, ok := readByte(p)
				if !ok {
					fail = true
					break
				}
				encoded[i] = v
				p += 8
			}
			if !fail {
				// A bit-level scan can alias D5 AA AD at misaligned offsets
				// inside real data; only a field whose DE AA epilogue also
				// lines up is believed.
				e0, oke0 := readByte(p)
				e1, oke1 := readByte(p + 8)
				if oke0 && oke1 && e0 == 0xde && e1 == 0xaa {
					// Find the owning address field's sector number by
					// re-scanning backward for the nearest D5 AA 96 prologue.
					sector := findPrecedingSector(bits, pos, readByte)
					if sector >= 0 {
						sectors[sector] = Decode6and2(encoded)
					}
				}
			}
		}
	}
	return sectors
}

// findPrecedingSector walks backward from a data field to the nearest D5 AA
// 96 address prologue and decodes its sector number (the third 4-and-4
// pair, after volume and track).
func findPrecedingSector(bits []byte, dataPos int, readByte func(int) (byte, bool)) int {
	for pos := dataPos - 1; pos >= 0 && dataPos-pos < 400; pos-- {
		b0, ok0 := readByte(pos)
		b1, ok1 := readByte(pos + 8)
		b2, ok2 := readByte(pos + 16)
		if !ok0 || !ok1 || !ok2 || b0 != 0xd5 || b1 != 0xaa || b2 != 0x96 {
			continue
		}
		sectorPair := pos + 24 + 32 // skip volume pair, then track pair
		sa, oka := readByte(sectorPair)
		sb, okb := readByte(sectorPair + 8)
		if !oka || !okb {
			return -1
		}
		return int(Decode4and4(sa, sb))
	}
	return -1
}

// Save re-flattens every track's nibble stream back into a 143,360-byte
// DOS 3.3 image, the write-back path required before a
// dirty track's head is allowed to move.
func (d *Disk) Save() ([]byte, error) {
	out := make([]byte, DskSizeBytes)
	for track := 0; track < MaxTrackDsk; track++ {
		stream, ok := d.Streams.StreamFor(track * 4)
		if !ok {
			continue
		}
		sectors := decodeTrackBits(stream.Bits)
		for sector, data := range sectors {
			if sector < 0 || sector > 15 {
				continue
			}
			logical := LogicalSectors[sector]
			offset := track*TrackSizeBytes + logical*SectorSizeBytes
			copy(out[offset:offset+SectorSizeBytes], data[:])
		}
	}
	d.Dirty = false
	return out, nil
}
