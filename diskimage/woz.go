package diskimage

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"strings"

	"github.com/pkg/errors"
)

var wozMagic1 = []byte("WOZ1")
var wozMagic2 = []byte("WOZ2")
var wozFixedTail = []byte{0xff, 0x0a, 0x0d, 0x0a}

// WozInfo mirrors a .woz file's INFO chunk: format version and the disk
// metadata a UI or the controller itself (write-protect) needs.
type WozInfo struct {
	Version            byte
	DiskType           byte
	WriteProtected     bool
	Synchronized       bool
	Cleaned            bool
	Creator            string
	DiskSides          byte
	BootSectorFormat   byte
	OptimalBitTiming   byte
	CompatibleHardware uint16
	RequiredRAMKB      uint16
	LargestTrackBlocks uint16
}

// Woz is a parsed .woz disk image: its INFO metadata, the decoded bit
// streams ready to drop straight into a Drive, and any free-form META
// key/value pairs.
type Woz struct {
	Info WozInfo
	Disk *Disk
	Meta map[string]string
}

// ParseWoz decodes a .woz v1 or v2 file into a Woz. It is deliberately
// tolerant of unknown chunks (FONT, WRIT and anything future-versioned are
// skipped), matching the format's own forward-compatibility rule: a reader
// should ignore chunks it doesn't understand.
func ParseWoz(data []byte) (*Woz, error) {
	if len(data) < 12 {
		return nil, errors.New("woz: file too short")
	}
	magic := data[0:4]
	isV1 := bytes.Equal(magic, wozMagic1)
	isV2 := bytes.Equal(magic, wozMagic2)
	if !isV1 && !isV2 {
		return nil, errors.Errorf("woz: bad magic %q", magic)
	}
	if !bytes.Equal(data[4:8], wozFixedTail) {
		return nil, errors.New("woz: bad fixed header bytes")
	}
	wantCRC := binary.LittleEndian.Uint32(data[8:12])
	if wantCRC != 0 {
		if got := crc32.ChecksumIEEE(data[12:]); got != wantCRC {
			return nil, errors.Errorf("woz: CRC32 mismatch: file says %08x, computed %08x", wantCRC, got)
		}
	}

	w := &Woz{Meta: map[string]string{}}
	var tmap [MaxPhase]uint8
	haveTMAP := false
	var trksOffset int
	haveTRKS := false

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		length := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		bodyStart := pos + 8
		if bodyStart+length > len(data) {
			return nil, errors.Errorf("woz: chunk %q overruns file", id)
		}
		body := data[bodyStart : bodyStart+length]
		switch id {
		case "INFO":
			if err := w.parseInfo(body); err != nil {
				return nil, err
			}
		case "TMAP":
			n := copy(tmap[:], body)
			if n != len(tmap) {
				return nil, errors.New("woz: TMAP chunk wrong size")
			}
			haveTMAP = true
		case "TRKS":
			trksOffset = bodyStart
			haveTRKS = true
		case "META":
			parseWozMeta(w.Meta, body)
		}
		pos = bodyStart + length
	}
	if !haveTMAP {
		return nil, errors.New("woz: missing TMAP chunk")
	}
	if !haveTRKS {
		return nil, errors.New("woz: missing TRKS chunk")
	}

	streams, err := decodeTRKS(data, trksOffset, isV2)
	if err != nil {
		return nil, err
	}
	streams.TMap = tmap

	w.Disk = &Disk{
		Streams:        streams,
		WriteProtected: w.Info.WriteProtected,
		Title:          w.Meta["title"],
	}
	return w, nil
}

func (w *Woz) parseInfo(body []byte) error {
	if len(body) < 37 {
		return errors.New("woz: INFO chunk too short")
	}
	w.Info.Version = body[0]
	w.Info.DiskType = body[1]
	w.Info.WriteProtected = body[2] == 1
	w.Info.Synchronized = body[3] == 1
	w.Info.Cleaned = body[4] == 1
	w.Info.Creator = strings.TrimRight(string(body[5:37]), " ")
	if w.Info.Version >= 2 && len(body) >= 60 {
		w.Info.DiskSides = body[37]
		w.Info.BootSectorFormat = body[38]
		w.Info.OptimalBitTiming = body[39]
		w.Info.CompatibleHardware = binary.LittleEndian.Uint16(body[40:42])
		w.Info.RequiredRAMKB = binary.LittleEndian.Uint16(body[42:44])
		w.Info.LargestTrackBlocks = binary.LittleEndian.Uint16(body[44:46])
	}
	return nil
}

func parseWozMeta(meta map[string]string, body []byte) {
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimRight(line, "\x00")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) == 2 {
			meta[parts[0]] = parts[1]
		}
	}
}

// wozV1TrackBytes is the fixed per-track slot size WOZ1 uses (6646 packed
// bytes of bitstream data followed by a small trailer).
const wozV1TrackBytes = 6646 + 8

// decodeTRKS reads the TRKS chunk body (absolute file offset trksOffset) and
// returns one BitStream per track slot, unpacked to one byte per bit.
// WOZ2 stores a 1280-byte table of (starting_block, block_count, bit_count)
// triples followed by 512-byte-aligned track data blocks; WOZ1 stores each
// track inline at a fixed stride with no lookup table.
func decodeTRKS(data []byte, trksOffset int, isV2 bool) (*BitStreams, error) {
	streams := &BitStreams{}
	if isV2 {
		if trksOffset+1280 > len(data) {
			return nil, errors.New("woz: TRKS table truncated")
		}
		for i := 0; i < MaxPhase; i++ {
			entryOff := trksOffset + i*8
			startBlock := binary.LittleEndian.Uint16(data[entryOff : entryOff+2])
			blockCount := binary.LittleEndian.Uint16(data[entryOff+2 : entryOff+4])
			bitCount := binary.LittleEndian.Uint32(data[entryOff+4 : entryOff+8])
			if blockCount == 0 {
				continue
			}
			byteOff := int(startBlock) * 512
			byteLen := int(blockCount) * 512
			if byteOff+byteLen > len(data) {
				return nil, errors.Errorf("woz: track %d data out of range", i)
			}
			packed := data[byteOff : byteOff+byteLen]
			for len(streams.Streams) <= i {
				streams.Streams = append(streams.Streams, BitStream{})
			}
			streams.Streams[i] = BitStream{Bits: unpackBits(packed, int(bitCount))}
		}
		return streams, nil
	}

	// WOZ1: up to 160 fixed-size slots, inline.
	for i := 0; ; i++ {
		off := trksOffset + i*wozV1TrackBytes
		if off+wozV1TrackBytes > len(data) {
			break
		}
		bytesUsed := int(binary.LittleEndian.Uint16(data[off+6646 : off+6648]))
		bitCount := int(binary.LittleEndian.Uint16(data[off+6648 : off+6650]))
		if bytesUsed == 0 {
			streams.Streams = append(streams.Streams, BitStream{})
			continue
		}
		packed := data[off : off+bytesUsed]
		streams.Streams = append(streams.Streams, BitStream{Bits: unpackBits(packed, bitCount)})
	}
	return streams, nil
}

func unpackBits(packed []byte, bitCount int) []byte {
	if bitCount <= 0 || bitCount > len(packed)*8 {
		bitCount = len(packed) * 8
	}
	bits := make([]byte, bitCount)
	for i := 0; i < bitCount; i++ {
		b := packed[i/8]
		bits[i] = (b >> uint(7-i%8)) & 1
	}
	return bits
}

func packBits(bits []byte) []byte {
	packed := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit != 0 {
			packed[i/8] |= 1 << uint(7-i%8)
		}
	}
	return packed
}

// WriteWoz2 serializes a Disk back out as a WOZ2 file: INFO, TMAP, TRKS
// (table plus 512-byte-block-aligned track data), and an optional META
// chunk, with the header CRC32 patched in over the assembled body.
func WriteWoz2(disk *Disk, info WozInfo, meta map[string]string) ([]byte, error) {
	var body bytes.Buffer

	// Pack the track data first so INFO can report the largest track.
	var streams []BitStream
	if disk.Streams != nil {
		streams = disk.Streams.Streams
	}
	table := make([]byte, 1280)
	var trackData bytes.Buffer
	var largestBlocks uint16
	const headerAndChunks = 12 + 8 + 60 + 8 + 160 + 8 + 1280
	curBlock := (headerAndChunks + 511) / 512
	for i := 0; i < MaxPhase; i++ {
		var packed []byte
		var bitCount int
		if i < len(streams) && len(streams[i].Bits) > 0 && !streams[i].Random {
			packed = packBits(streams[i].Bits)
			bitCount = len(streams[i].Bits)
		}
		if len(packed) == 0 {
			continue
		}
		blockCount := (len(packed) + 511) / 512
		padded := make([]byte, blockCount*512)
		copy(padded, packed)
		entryOff := i * 8
		binary.LittleEndian.PutUint16(table[entryOff:entryOff+2], uint16(curBlock))
		binary.LittleEndian.PutUint16(table[entryOff+2:entryOff+4], uint16(blockCount))
		binary.LittleEndian.PutUint32(table[entryOff+4:entryOff+8], uint32(bitCount))
		trackData.Write(padded)
		curBlock += blockCount
		if uint16(blockCount) > largestBlocks {
			largestBlocks = uint16(blockCount)
		}
	}

	infoBody := make([]byte, 60)
	infoBody[0] = 2
	infoBody[1] = info.DiskType
	if info.WriteProtected || disk.WriteProtected {
		infoBody[2] = 1
	}
	if info.Synchronized {
		infoBody[3] = 1
	}
	if info.Cleaned {
		infoBody[4] = 1
	}
	creator := info.Creator
	if creator == "" {
		creator = "apple2e Go emulator"
	}
	copy(infoBody[5:37], []byte(padRight(creator, 32)))
	infoBody[37] = 1 // disk sides
	infoBody[38] = info.BootSectorFormat
	infoBody[39] = info.OptimalBitTiming
	binary.LittleEndian.PutUint16(infoBody[40:42], info.CompatibleHardware)
	binary.LittleEndian.PutUint16(infoBody[42:44], info.RequiredRAMKB)
	binary.LittleEndian.PutUint16(infoBody[44:46], largestBlocks)
	writeWozChunk(&body, "INFO", infoBody)

	var tmap [MaxPhase]byte
	if disk.Streams != nil {
		tmap = disk.Streams.TMap
	} else {
		for i := range tmap {
			tmap[i] = NoStream
		}
	}
	writeWozChunk(&body, "TMAP", tmap[:])

	var trks bytes.Buffer
	trks.Write(table)
	trks.Write(trackData.Bytes())
	writeWozChunk(&body, "TRKS", trks.Bytes())

	if len(meta) > 0 {
		var m bytes.Buffer
		for k, v := range meta {
			m.WriteString(k)
			m.WriteByte('\t')
			m.WriteString(v)
			m.WriteByte('\n')
		}
		writeWozChunk(&body, "META", m.Bytes())
	}

	out := make([]byte, 12+body.Len())
	copy(out[0:4], wozMagic2)
	copy(out[4:8], wozFixedTail)
	copy(out[12:], body.Bytes())
	binary.LittleEndian.PutUint32(out[8:12], crc32.ChecksumIEEE(out[12:]))
	return out, nil
}

func writeWozChunk(buf *bytes.Buffer, id string, data []byte) {
	buf.WriteString(id)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}
