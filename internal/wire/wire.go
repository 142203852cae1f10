// Package wire defines the byte layouts exchanged between ranks: the
// broadcast that starts a run and the match report a worker sends to the
// coordinator.
//
// All integers are little-endian. The elapsed time is a signed 64-bit count of
// nanoseconds so that every platform agrees on the header size.
package wire

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// HeaderSize is the fixed part of a match report: checksum (4) + elapsed (8).
const HeaderSize = 4 + 8

// ErrShortMessage is returned when a buffer is too small for its layout.
var ErrShortMessage = errors.New("short message")

// Match is a candidate whose checksum equals the search target.
type Match struct {
	Checksum  uint32        `json:"checksum"`
	Candidate []byte        `json:"candidate"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	// Source is the rank that found the match. It is filled in by the
	// receiver and is not part of the wire format.
	Source int `json:"source"`
}

// EncodedLen returns the size of m's match report.
func EncodedLen(m Match) int { return HeaderSize + len(m.Candidate) }

// EncodeMatch returns a freshly allocated match report for m.
func EncodeMatch(m Match) []byte {
	buf := make([]byte, EncodedLen(m))
	binary.LittleEndian.PutUint32(buf[0:4], m.Checksum)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(m.Elapsed.Nanoseconds()))
	copy(buf[HeaderSize:], m.Candidate)
	return buf
}

// DecodeMatch parses a match report. The candidate is everything after the
// header, so its length is len(buf) - HeaderSize. The returned candidate does
// not alias buf.
func DecodeMatch(buf []byte) (Match, error) {
	if len(buf) < HeaderSize {
		return Match{}, errors.Wrapf(ErrShortMessage, "match report of %d bytes", len(buf))
	}
	return Match{
		Checksum:  binary.LittleEndian.Uint32(buf[0:4]),
		Elapsed:   time.Duration(int64(binary.LittleEndian.Uint64(buf[4:12]))),
		Candidate: append([]byte(nil), buf[HeaderSize:]...),
	}, nil
}

// Params are the search parameters the coordinator broadcasts to every rank.
type Params struct {
	Target   uint32
	Alphabet []byte
}

// EncodeParams lays out target (4), alphabet length (4), alphabet bytes.
func EncodeParams(p Params) []byte {
	buf := make([]byte, 8+len(p.Alphabet))
	binary.LittleEndian.PutUint32(buf[0:4], p.Target)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(p.Alphabet)))
	copy(buf[8:], p.Alphabet)
	return buf
}

// DecodeParams parses a broadcast payload.
func DecodeParams(buf []byte) (Params, error) {
	if len(buf) < 8 {
		return Params{}, errors.Wrapf(ErrShortMessage, "broadcast of %d bytes", len(buf))
	}
	n := binary.LittleEndian.Uint32(buf[4:8])
	if uint64(len(buf)-8) < uint64(n) {
		return Params{}, errors.Wrapf(ErrShortMessage, "broadcast announces %d alphabet bytes, carries %d", n, len(buf)-8)
	}
	return Params{
		Target:   binary.LittleEndian.Uint32(buf[0:4]),
		Alphabet: append([]byte(nil), buf[8:8+n]...),
	}, nil
}
