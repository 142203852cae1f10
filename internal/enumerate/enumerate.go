// Package enumerate generates every candidate string of a fixed length over an
// alphabet.
//
// Candidates come out in odometer order: the rightmost position advances
// fastest and wraps into its left neighbour, exactly like a mechanical counter.
// The generator keeps one digit per position instead of recursing, so the
// candidate length is bounded only by memory, any position in the sequence can
// be computed directly from its index, and a run can resume from any
// candidate.
package enumerate

import (
	"bytes"
	"iter"
	"math/big"

	"github.com/pkg/errors"
)

// Odometer walks all candidates of one length.
// The slice returned by Bytes is reused between calls to Next.
type Odometer struct {
	alphabet Alphabet
	digits   []int
	buf      []byte
	started  bool
	done     bool
}

// NewOdometer returns an odometer positioned before the first candidate of
// the given length.
func NewOdometer(alphabet Alphabet, length int) *Odometer {
	o := &Odometer{
		alphabet: alphabet,
		digits:   make([]int, length),
		buf:      make([]byte, length),
	}
	for i := range o.buf {
		o.buf[i] = alphabet[0]
	}
	return o
}

// NewOdometerAt returns an odometer whose next candidate is start.
// Every byte of start must belong to the alphabet.
func NewOdometerAt(alphabet Alphabet, start []byte) (*Odometer, error) {
	idx := alphabet.index()
	o := &Odometer{
		alphabet: alphabet,
		digits:   make([]int, len(start)),
		buf:      make([]byte, len(start)),
	}
	for i, c := range start {
		d := idx[c]
		if d < 0 {
			return nil, errors.Errorf("byte %q at position %d is not in the alphabet", c, i)
		}
		o.digits[i] = d
		o.buf[i] = c
	}
	return o, nil
}

// Next advances to the next candidate and reports whether there is one.
func (o *Odometer) Next() bool {
	if o.done {
		return false
	}
	if !o.started {
		o.started = true
		return true
	}
	base := len(o.alphabet)
	for i := len(o.digits) - 1; i >= 0; i-- {
		o.digits[i]++
		if o.digits[i] < base {
			o.buf[i] = o.alphabet[o.digits[i]]
			return true
		}
		o.digits[i] = 0
		o.buf[i] = o.alphabet[0]
	}
	// every position wrapped: the length is exhausted
	o.done = true
	return false
}

// Bytes returns the current candidate. It is only valid until the next call
// to Next.
func (o *Odometer) Bytes() []byte { return o.buf }

// Digits returns the alphabet index of each position of the current candidate.
func (o *Odometer) Digits() []int { return o.digits }

// All yields every candidate of the given length in odometer order.
// Length 0 yields exactly one empty candidate. The yielded slice is reused;
// callers that keep a candidate must copy it.
func All(alphabet Alphabet, length int) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		o := NewOdometer(alphabet, length)
		for o.Next() {
			if !yield(o.Bytes()) {
				return
			}
		}
	}
}

// From yields the candidates of len(start) starting at start and running to
// the last candidate of that length. Every byte of start must belong to the
// alphabet.
func From(alphabet Alphabet, start []byte) (iter.Seq[[]byte], error) {
	if _, err := NewOdometerAt(alphabet, start); err != nil {
		return nil, err
	}
	start = bytes.Clone(start)
	return func(yield func([]byte) bool) {
		o, _ := NewOdometerAt(alphabet, start)
		for o.Next() {
			if !yield(o.Bytes()) {
				return
			}
		}
	}, nil
}

// Count returns the number of candidates of the given length, |alphabet|^length.
func Count(alphabet Alphabet, length int) *big.Int {
	return new(big.Int).Exp(big.NewInt(int64(len(alphabet))), big.NewInt(int64(length)), nil)
}

// At returns the candidate at position index of the odometer sequence for
// length. Index 0 is the first candidate.
func At(alphabet Alphabet, length int, index *big.Int) ([]byte, error) {
	if index.Sign() < 0 || index.Cmp(Count(alphabet, length)) >= 0 {
		return nil, errors.Errorf("index %s out of range for length %d", index, length)
	}
	base := big.NewInt(int64(len(alphabet)))
	rest := new(big.Int).Set(index)
	digit := new(big.Int)
	out := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		rest.QuoRem(rest, base, digit)
		out[i] = alphabet[digit.Int64()]
	}
	return out, nil
}

// IndexOf returns the position of candidate in the odometer sequence of its
// length. It is the inverse of At.
func IndexOf(alphabet Alphabet, candidate []byte) (*big.Int, error) {
	idx := alphabet.index()
	base := big.NewInt(int64(len(alphabet)))
	out := new(big.Int)
	for i, c := range candidate {
		d := idx[c]
		if d < 0 {
			return nil, errors.Errorf("byte %q at position %d is not in the alphabet", c, i)
		}
		out.Mul(out, base)
		out.Add(out, big.NewInt(int64(d)))
	}
	return out, nil
}
