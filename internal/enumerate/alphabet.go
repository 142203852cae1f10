package enumerate

import (
	"strconv"

	"github.com/pkg/errors"
)

// ErrInvalidAlphabet is returned when an alphabet is empty, contains the zero
// byte, or repeats a byte.
var ErrInvalidAlphabet = errors.New("invalid alphabet")

// Alphabet is the ordered set of bytes candidates are built from.
// The index of a byte in the alphabet is its digit value in the odometer.
type Alphabet []byte

// Alphabet presets selectable by name.
const (
	// Printable is every printable ASCII character, space included.
	Printable = "printable"
	// Graphic is Printable without space.
	Graphic = "graphic"
)

func asciiRange(first, last byte) Alphabet {
	a := make(Alphabet, 0, int(last-first)+1)
	for c := first; c <= last; c++ {
		a = append(a, c)
	}
	return a
}

// DefaultAlphabet returns every printable ASCII character, ' ' through '~',
// in index order.
func DefaultAlphabet() Alphabet { return asciiRange(' ', '~') }

// GraphicAlphabet returns the printable ASCII characters except space.
func GraphicAlphabet() Alphabet { return asciiRange('!', '~') }

// Preset returns the alphabet called name. An empty name selects Printable.
func Preset(name string) (Alphabet, error) {
	switch name {
	case "", Printable:
		return DefaultAlphabet(), nil
	case Graphic:
		return GraphicAlphabet(), nil
	}
	return nil, errors.Wrapf(ErrInvalidAlphabet, "unknown alphabet preset %q", name)
}

// Validate reports ErrInvalidAlphabet if the alphabet is empty, contains the
// zero byte, or lists any byte twice.
func (a Alphabet) Validate() error {
	if len(a) == 0 {
		return errors.Wrap(ErrInvalidAlphabet, "alphabet is empty")
	}
	var seen [256]bool
	for i, c := range a {
		if c == 0 {
			return errors.Wrapf(ErrInvalidAlphabet, "zero byte at position %d", i)
		}
		if seen[c] {
			return errors.Wrapf(ErrInvalidAlphabet, "byte %q repeated at position %d", c, i)
		}
		seen[c] = true
	}
	return nil
}

// ParseAlphabet builds an alphabet from s, keeping only its first n bytes when
// n is non-empty. An empty s selects def.
func ParseAlphabet(def Alphabet, s, n string) (Alphabet, error) {
	a := def
	if s != "" {
		a = Alphabet(s)
	}
	if n != "" {
		length, err := strconv.Atoi(n)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidAlphabet, "alphabet length %q", n)
		}
		if length < 1 || length > len(a) {
			return nil, errors.Wrapf(ErrInvalidAlphabet, "alphabet length %d outside [1, %d]", length, len(a))
		}
		a = a[:length]
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// index returns the digit value of every byte in the alphabet, or -1 for
// bytes that are not part of it.
func (a Alphabet) index() [256]int {
	var idx [256]int
	for i := range idx {
		idx[i] = -1
	}
	for i, c := range a {
		idx[c] = i
	}
	return idx
}
