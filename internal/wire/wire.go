package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"

	"github.com/unkn0wn-root/vermaster/vc"
)

const (
	version byte = 1
	kindDoc byte = 1
)

var (
	ErrCorrupt = errors.New("vermaster: corrupt shared entry")
	magic4     = [...]byte{'V', 'M', 'D', 'C'}
)

// Envelope is a document snapshot as stored in the shared tier. Gen is the
// owning object's generation when the snapshot was written.
type Envelope struct {
	Gen      uint64
	UniqueID string
	Bounds   vc.Bounds
	Payload  []byte
}

const boundSize = 8 + 4

// MaxUniqueIDLen is the longest unique id an envelope can carry.
const MaxUniqueIDLen = 0xFFFF

// Doc:
//
//	magic(4) | ver(1) | kind(1=doc) | gen(u64 be) | mask(1)
//	(sec(i64 be) | nsec(u32 be)) * popcount(mask)
//	uidLen(u16 be) | uid(uidLen) | vlen(u32 be) | payload(vlen)
//
// mask bit i is set when bound i (VersionFrom, VersionTo, CorrectionFrom,
// CorrectionTo) is bounded; unbounded ends are omitted.
func Encode(e Envelope) []byte {
	if l := len(e.UniqueID); l == 0 || l > MaxUniqueIDLen {
		panic("vermaster: invalid unique id length in envelope")
	}
	bounds := boundsOf(e.Bounds)

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 8 + 1 + len(bounds)*boundSize + 2 + len(e.UniqueID) + 4 + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindDoc)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], e.Gen)
	buf.Write(u8[:])

	var mask byte
	for i, t := range bounds {
		if !t.IsZero() {
			mask |= 1 << i
		}
	}
	buf.WriteByte(mask)
	for _, t := range bounds {
		if t.IsZero() {
			continue
		}
		binary.BigEndian.PutUint64(u8[:], uint64(t.Unix()))
		buf.Write(u8[:])
		binary.BigEndian.PutUint32(u4[:], uint32(t.Nanosecond()))
		buf.Write(u4[:])
	}

	binary.BigEndian.PutUint16(u2[:], uint16(len(e.UniqueID)))
	buf.Write(u2[:])
	buf.WriteString(e.UniqueID)

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)
	return buf.Bytes()
}

func Decode(b []byte) (Envelope, error) {
	const hdr = 4 + 1 + 1 + 8 + 1
	if len(b) < hdr || !bytes.Equal(b[:4], magic4[:]) || b[4] != version || b[5] != kindDoc {
		return Envelope{}, ErrCorrupt
	}
	off := 6

	var e Envelope
	e.Gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	mask := b[off]
	off++
	if mask&0xF0 != 0 {
		return Envelope{}, ErrCorrupt
	}

	var bounds [4]time.Time
	for i := range bounds {
		if mask&(1<<i) == 0 {
			continue
		}
		if off+boundSize > len(b) {
			return Envelope{}, ErrCorrupt
		}
		sec := int64(binary.BigEndian.Uint64(b[off : off+8]))
		nsec := binary.BigEndian.Uint32(b[off+8 : off+12])
		off += boundSize
		if nsec >= 1e9 {
			return Envelope{}, ErrCorrupt
		}
		bounds[i] = time.Unix(sec, int64(nsec)).UTC()
	}
	e.Bounds = vc.Bounds{
		VersionFrom: bounds[0], VersionTo: bounds[1],
		CorrectionFrom: bounds[2], CorrectionTo: bounds[3],
	}

	if off+2 > len(b) {
		return Envelope{}, ErrCorrupt
	}
	ulen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if ulen == 0 || ulen > len(b)-off {
		return Envelope{}, ErrCorrupt
	}
	e.UniqueID = string(b[off : off+ulen])
	off += ulen

	if off+4 > len(b) {
		return Envelope{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // strict: no trailing bytes
		return Envelope{}, ErrCorrupt
	}
	e.Payload = b[off : off+vlen]
	return e, nil
}

func boundsOf(b vc.Bounds) [4]time.Time {
	return [4]time.Time{b.VersionFrom, b.VersionTo, b.CorrectionFrom, b.CorrectionTo}
}
