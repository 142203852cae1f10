// Package checksum computes CRC-32C (Castagnoli) checksums.
//
// Three interchangeable variants exist. Which one a process uses is decided
// once, at startup, by a pure function over the detected CPU features; the
// chosen variant is then fixed for the life of the Oracle. All variants
// produce bit-identical output.
package checksum

import (
	"fmt"
	"hash/crc32"
	"sync"
)

// Polynomial is the reversed Castagnoli polynomial.
const Polynomial = 0x82f63b78

// Variant names a CRC-32C implementation.
type Variant string

const (
	// Hardware uses the standard library Castagnoli path, which runs on the
	// SSE4.2 CRC32 instruction (amd64) or the ARMv8 CRC32 instructions (arm64).
	Hardware Variant = "hardware"
	// Slicing8 is a portable table-driven implementation that consumes eight
	// bytes per step.
	Slicing8 Variant = "slicing8"
	// Bytewise is the reference implementation: one table lookup per byte.
	Bytewise Variant = "bytewise"
)

// Variants lists every variant, fastest first.
func Variants() []Variant {
	return []Variant{Hardware, Slicing8, Bytewise}
}

// ParseVariant maps a configuration value to a Variant.
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants() {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown checksum variant %q", s)
}

// Oracle computes CRC-32C checksums with one fixed variant.
// It holds no mutable state and is safe for concurrent use.
type Oracle struct {
	variant Variant
	update  func(crc uint32, p []byte) uint32
}

// New returns an Oracle that uses variant v.
func New(v Variant) (*Oracle, error) {
	switch v {
	case Hardware:
		tab := castagnoli()
		return &Oracle{variant: v, update: func(crc uint32, p []byte) uint32 {
			return crc32.Update(crc, tab, p)
		}}, nil
	case Slicing8:
		return &Oracle{variant: v, update: slicing8Update}, nil
	case Bytewise:
		return &Oracle{variant: v, update: bytewiseUpdate}, nil
	default:
		return nil, fmt.Errorf("unknown checksum variant %q", v)
	}
}

// NewDetected returns an Oracle using the variant Select picks for this CPU.
func NewDetected() *Oracle {
	o, _ := New(Select(Detect()))
	return o
}

// Calc returns the CRC-32C of p continuing from seed. A seed of 0 yields the
// standard checksum of p; passing a previous result continues that checksum.
func (o *Oracle) Calc(p []byte, seed uint32) uint32 {
	return o.update(seed, p)
}

// Variant reports which implementation the Oracle uses.
func (o *Oracle) Variant() Variant { return o.variant }

var (
	castagnoliOnce  sync.Once
	castagnoliTable *crc32.Table
)

func castagnoli() *crc32.Table {
	castagnoliOnce.Do(func() {
		castagnoliTable = crc32.MakeTable(crc32.Castagnoli)
	})
	return castagnoliTable
}
