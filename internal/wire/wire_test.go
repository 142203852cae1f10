package wire

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchRoundTrip(t *testing.T) {
	m := Match{Checksum: 0xC8A106E5, Candidate: []byte("Hello, world!"), Elapsed: 1234 * time.Nanosecond}
	buf := EncodeMatch(m)
	require.Len(t, buf, HeaderSize+13)

	got, err := DecodeMatch(buf)
	require.NoError(t, err)
	assert.Equal(t, m.Checksum, got.Checksum)
	assert.Equal(t, m.Elapsed, got.Elapsed)
	assert.Equal(t, m.Candidate, got.Candidate)

	// decoded candidate must not alias the receive buffer
	buf[HeaderSize] = 'J'
	assert.Equal(t, byte('H'), got.Candidate[0])
}

func TestMatchLayout(t *testing.T) {
	buf := EncodeMatch(Match{Checksum: 0x04030201, Elapsed: 0x0c0b0a0908070605, Candidate: []byte("x")})
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 'x'}, buf)
}

func TestDecodeMatchHeaderOnly(t *testing.T) {
	got, err := DecodeMatch(make([]byte, HeaderSize))
	require.NoError(t, err)
	assert.Empty(t, got.Candidate)
}

func TestDecodeMatchShort(t *testing.T) {
	_, err := DecodeMatch(make([]byte, HeaderSize-1))
	assert.True(t, errors.Is(err, ErrShortMessage))
}

func TestParamsRoundTrip(t *testing.T) {
	p := Params{Target: 0xdeadbeef, Alphabet: []byte("abc\xff")}
	buf := EncodeParams(p)
	assert.Equal(t, []byte{0xef, 0xbe, 0xad, 0xde, 4, 0, 0, 0, 'a', 'b', 'c', 0xff}, buf)

	got, err := DecodeParams(buf)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestDecodeParamsShort(t *testing.T) {
	_, err := DecodeParams([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortMessage)

	buf := EncodeParams(Params{Target: 1, Alphabet: []byte("abcd")})
	_, err = DecodeParams(buf[:len(buf)-1])
	assert.ErrorIs(t, err, ErrShortMessage)
}
