// Package scheme implements the control-message encoder (spec.md §4.G):
// it fills the Connect/Disconnect byte layouts with their fixed-size
// header and offset-pointer string/list fields. The layout is grounded on
// original_source/src/http-scheme-binder.h, which fixes the exact field
// offsets of the real wire contract this module was distilled from:
//
//	Connect  (id=1, 27-byte fixed header):
//	  0  method   int8
//	  1  code     int16 LE
//	  3  size     int64 LE
//	  11 path     offsetPtr (string)
//	  19 headers  offsetPtr (list of Header, entry size 16)
//	Header (16-byte fixed):
//	  0  header   offsetPtr (string)
//	  8  value    offsetPtr (string)
//	Disconnect (id=2, 10-byte fixed header):
//	  0  code     int16 LE
//	  2  error    offsetPtr (string)
//
// http-scheme-binder.h does not itself define the offset-pointer's byte
// representation (that lives in the tll library this was distilled from,
// which is outside the retrieved source). This package fixes that detail
// as an 8-byte little-endian pair: a uint32 absolute byte offset from the
// start of the encoded message to the pointed-to data in the trailing
// arena, followed by a uint32 length — bytes for a string, entry count
// for a list. This is the "frozen wire contract" design note in spec.md
// §9 calls for: bytes and offsets specified, not code-generated.
//
// The encoder does not own the reader side (spec.md §4.G): it only emits
// bytes for whatever scheme-aware consumer upstream supplies.
package scheme

import (
	"encoding/binary"

	"github.com/arvo-systems/chanhttp/api"
)

// SchemeVersion identifies the Method enum numbering this encoder uses:
// UNDEFINED=-1, GET=0, ..., PATCH=8 (see SPEC_FULL.md's Open Question
// decision). A future incompatible renumbering must bump this constant.
const SchemeVersion = 1

// Message IDs, per http-scheme-binder.h.
const (
	ConnectMsgID    = 1
	DisconnectMsgID = 2
)

const (
	connectFixedSize    = 27
	disconnectFixedSize = 10
	headerEntrySize     = 16
	offsetPtrSize       = 8
)

type arenaBuilder struct {
	base int
	buf  []byte
}

func newArenaBuilder(base int) *arenaBuilder {
	return &arenaBuilder{base: base}
}

// append copies b into the arena and returns (offset, length) suitable for
// an offsetPtr field.
func (a *arenaBuilder) append(b []byte) (offset, length uint32) {
	offset = uint32(a.base + len(a.buf))
	length = uint32(len(b))
	a.buf = append(a.buf, b...)
	return
}

// reserve appends n zero bytes and returns the offset they start at, for a
// placeholder later patched in place (e.g. a list's fixed-size entry
// array, whose entries reference strings appended after it).
func (a *arenaBuilder) reserve(n int) (offset int) {
	offset = a.base + len(a.buf)
	a.buf = append(a.buf, make([]byte, n)...)
	return
}

func putOffsetPtr(dst []byte, offset, length uint32) {
	binary.LittleEndian.PutUint32(dst[0:4], offset)
	binary.LittleEndian.PutUint32(dst[4:8], length)
}

// EncodeConnect serializes a Connect control record.
func EncodeConnect(rec api.ConnectRecord) []byte {
	fixed := make([]byte, connectFixedSize)
	fixed[0] = byte(int8(rec.Method))
	binary.LittleEndian.PutUint16(fixed[1:3], uint16(rec.Code))
	binary.LittleEndian.PutUint64(fixed[3:11], uint64(rec.Size))

	arena := newArenaBuilder(connectFixedSize)

	pathOff, pathLen := arena.append([]byte(rec.Path))
	putOffsetPtr(fixed[11:19], pathOff, pathLen)

	listOff := arena.reserve(len(rec.Headers) * headerEntrySize)
	for i, h := range rec.Headers {
		entryOff := listOff - connectFixedSize + i*headerEntrySize
		nameOff, nameLen := arena.append([]byte(h.Name))
		valOff, valLen := arena.append([]byte(h.Value))
		putOffsetPtr(arena.buf[entryOff:entryOff+offsetPtrSize], nameOff, nameLen)
		putOffsetPtr(arena.buf[entryOff+offsetPtrSize:entryOff+2*offsetPtrSize], valOff, valLen)
	}
	putOffsetPtr(fixed[19:27], uint32(listOff), uint32(len(rec.Headers)))

	return append(fixed, arena.buf...)
}

// EncodeDisconnect serializes a Disconnect control record.
func EncodeDisconnect(rec api.DisconnectRecord) []byte {
	fixed := make([]byte, disconnectFixedSize)
	binary.LittleEndian.PutUint16(fixed[0:2], uint16(rec.Code))

	arena := newArenaBuilder(disconnectFixedSize)
	errOff, errLen := arena.append([]byte(rec.Error))
	putOffsetPtr(fixed[2:10], errOff, errLen)

	return append(fixed, arena.buf...)
}
