// Package nibble provides diagnostic inspection of a track's raw bit
// stream: classifying whether it looks like a standard DOS 3.3 track,
// something nonstandard (copy-protected), or unformatted, and walking its
// address/data field prologues. This is read-only inspection for tooling
// (cmd/diskinfo); the live read/write path runs through lss.Engine and
// diskimage.Disk instead.
package nibble

import "github.com/jchacon/apple2e/diskimage"

// TrackKind classifies a track's overall shape.
type TrackKind int

const (
	Unknown TrackKind = iota
	Standard
	Nonstandard
	Empty
)

func (k TrackKind) String() string {
	switch k {
	case Standard:
		return "standard"
	case Nonstandard:
		return "nonstandard"
	case Empty:
		return "empty"
	default:
		return "unknown"
	}
}

// FieldKind identifies which part of a sector a scanned region belongs to.
type FieldKind int

const (
	AddressPrologue FieldKind = iota
	AddressContent
	AddressEpilogue
	DataPrologue
	DataContent
	DataEpilogue
)

// Field is one recognized region of a track's bit stream.
type Field struct {
	Kind   FieldKind
	BitPos int
	Track  int
	Sector int
}

func readByte(bits []byte, pos int) (byte, bool) {
	if pos < 0 || pos+8 > len(bits) {
		return 0, false
	}
	var b byte
	for i := 0; i < 8; i++ {
		b = (b << 1) | bits[pos+i]
	}
	return b, true
}

// Scan walks a track's bit stream and returns every address and data field
// it recognizes, in bit-position order.
func Scan(bits []byte) []Field {
	var fields []Field
	for pos := 0; pos+24 <= len(bits); pos++ {
		b0, ok0 := readByte(bits, pos)
		b1, ok1 := readByte(bits, pos+8)
		b2, ok2 := readByte(bits, pos+16)
		if !ok0 || !ok1 || !ok2 || b0 != 0xd5 || b1 != 0xaa {
			continue
		}
		switch b2 {
		case 0x96:
			fields = append(fields, Field{Kind: AddressPrologue, BitPos: pos})
			if vol, track, sector, ok := decodeAddress(bits, pos+24); ok {
				_ = vol
				contentEnd := pos + 24 + 64
				fields = append(fields, Field{Kind: AddressContent, BitPos: pos + 24, Track: track, Sector: sector})
				if isEpilogue(bits, contentEnd) {
					fields = append(fields, Field{Kind: AddressEpilogue, BitPos: contentEnd, Track: track, Sector: sector})
				}
			}
		case 0xad:
			fields = append(fields, Field{Kind: DataPrologue, BitPos: pos})
			fields = append(fields, Field{Kind: DataContent, BitPos: pos + 24})
			contentEnd := pos + 24 + diskimage.DataFieldSize*8
			if isEpilogue(bits, contentEnd) {
				fields = append(fields, Field{Kind: DataEpilogue, BitPos: contentEnd})
			}
		}
	}
	return fields
}

// isEpilogue reports whether the DE AA EB trailer sits at pos.
func isEpilogue(bits []byte, pos int) bool {
	b0, ok0 := readByte(bits, pos)
	b1, ok1 := readByte(bits, pos+8)
	b2, ok2 := readByte(bits, pos+16)
	return ok0 && ok1 && ok2 && b0 == 0xde && b1 == 0xaa && b2 == 0xeb
}

func decodeAddress(bits []byte, pos int) (vol, track, sector int, ok bool) {
	vals := make([]int, 4)
	p := pos
	for i := 0; i < 4; i++ {
		a, ok1 := readByte(bits, p)
		b, ok2 := readByte(bits, p+8)
		if !ok1 || !ok2 {
			return 0, 0, 0, false
		}
		vals[i] = int(diskimage.Decode4and4(a, b))
		p += 16
	}
	return vals[0], vals[1], vals[2], true
}

// trackerState enumerates where SectorTracker is inside an address field.
type trackerState int

const (
	tStart trackerState = iota
	tD5
	tD5AA
	tVolume0
	tVolume1
	tTrack0
	tTrack1
	tSector0
	tSector1
)

// SectorTracker watches the stream of nibbles the disk controller latches
// and recovers (volume, track, sector) from each D5 AA 96 address field as
// it flies by, for drive-activity indicators. It never touches the disk
// itself; feed it each consumed read-latch byte.
type SectorTracker struct {
	state   trackerState
	current byte
	Volume  byte
	Track   byte
	Sector  byte
	seen    bool
}

// Feed advances the tracker with one nibble read off the disk.
func (s *SectorTracker) Feed(b byte) {
	pair := func(b0, b1 byte) byte {
		return ((b0 << 1) | 1) & b1
	}
	switch {
	case b == 0xd5 && s.state == tStart:
		s.state = tD5
	case b == 0xaa && s.state == tD5:
		s.state = tD5AA
	case b == 0x96 && s.state == tD5AA:
		s.state = tVolume0
	default:
		switch s.state {
		case tVolume0:
			s.current = b
			s.state = tVolume1
		case tVolume1:
			s.Volume = pair(s.current, b)
			s.state = tTrack0
		case tTrack0:
			s.current = b
			s.state = tTrack1
		case tTrack1:
			s.Track = pair(s.current, b)
			s.state = tSector0
		case tSector0:
			s.current = b
			s.state = tSector1
		case tSector1:
			s.Sector = pair(s.current, b)
			s.state = tStart
			s.seen = true
		default:
			s.state = tStart
		}
	}
}

// Position returns the last complete (track, sector) observed and whether
// any address field has been seen at all yet.
func (s *SectorTracker) Position() (track, sector byte, ok bool) {
	return s.Track, s.Sector, s.seen
}

// Classify gives a track's overall shape: Empty if it's unformatted noise
// (no recognizable address field at all), Standard if every sector 0-15 on
// the track has a recognizable address field (the order in which they
// appear is not checked), Nonstandard otherwise (a copy-protected track
// using a custom format).
func Classify(bits []byte) TrackKind {
	fields := Scan(bits)
	seen := map[int]bool{}
	addressFields := 0
	for _, f := range fields {
		if f.Kind == AddressContent {
			addressFields++
			seen[f.Sector] = true
		}
	}
	if addressFields == 0 {
		return Empty
	}
	if len(seen) == 16 {
		allPresent := true
		for s := 0; s < 16; s++ {
			if !seen[s] {
				allPresent = false
				break
			}
		}
		if allPresent {
			return Standard
		}
	}
	return Nonstandard
}
