package cryptocycle

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/packetcrypt/hash"
)

func newState(t *testing.T, seedByte byte, nonce uint64) *State {
	t.Helper()
	s := new(State)
	Initialize(s, bytes.Repeat([]byte{seedByte}, 32), nonce)
	return s
}

func TestInitialize(t *testing.T) {
	t.Parallel()
	r := require.New(t)
	seed := bytes.Repeat([]byte{0x42}, 32)

	s := newState(t, 0x42, 0x0102030405060708)
	expanded := make([]byte, StateSize)
	hash.Expand(expanded, seed, 0)

	r.Equal(uint64(0x0102030405060708), binary.LittleEndian.Uint64(s[0:8]))
	r.Equal(expanded[8:12], s[8:12])
	r.Equal(expanded[16:], s[16:])

	word := binary.LittleEndian.Uint32(s[12:16])
	r.Equal((binary.LittleEndian.Uint32(expanded[16:20])&0x00FFFFFF)|(32<<17), word)
	r.GreaterOrEqual(header(s[:]).length(), uint32(32))

	r.Equal(s, newState(t, 0x42, 0x0102030405060708), "deterministic")
	r.NotEqual(s, newState(t, 0x42, 1))
	r.NotEqual(s, newState(t, 0x43, 0x0102030405060708))
}

func TestItemNumber(t *testing.T) {
	t.Parallel()
	s := new(State)
	binary.LittleEndian.PutUint64(s[16:24], 0xdeadbeef12345678)
	require.Equal(t, uint64(0xdeadbeef12345678), ItemNumber(s))
}

func TestUpdateIsDeterministic(t *testing.T) {
	t.Parallel()
	r := require.New(t)
	item := bytes.Repeat([]byte{0xab}, ItemSize)
	content := bytes.Repeat([]byte{0xcd}, ContentSize)

	a := newState(t, 1, 7)
	b := newState(t, 1, 7)
	Update(a, item, nil)
	Update(b, item, nil)
	r.Equal(a, b)

	c := newState(t, 1, 7)
	Update(c, item, content)
	r.NotEqual(a, c, "content block is absorbed")

	item[1023] ^= 1
	d := newState(t, 1, 7)
	Update(d, item, nil)
	r.NotEqual(a, d)
}

func TestCryptZeroesTrailingBytes(t *testing.T) {
	t.Parallel()
	r := require.New(t)
	s := newState(t, 9, 0)
	h := header(s[:])
	// encrypt, 2 units of associated data, 15 trailing zero bytes
	h.setBits(12, 1, 0)
	h.setBits(13, 3, 2)
	h.setBits(8, 4, 15)
	h.setBits(17, 7, 40)
	msgLen := 40 * 16
	end := aeadOffset + 2*16 + msgLen

	before := *s
	Crypt(s[:])

	r.Equal(make([]byte, 15), s[end-15:end])
	r.Equal(before[end:], s[end:], "bytes after the message are untouched")
	r.Equal(before[aeadOffset:aeadOffset+32], s[aeadOffset:aeadOffset+32], "associated data is not encrypted")
	r.NotEqual(before[16:32], s[16:32], "tag is written over the key")
	r.Equal(before[0:12], s[0:12])
}

func TestCryptTruncatesLength(t *testing.T) {
	t.Parallel()
	r := require.New(t)
	s := newState(t, 5, 0)
	h := header(s[:])
	h.setBits(13, 3, 7)
	h.setBits(17, 7, 127)

	Crypt(s[:])

	r.Equal(uint32(maxMessageUnits-7), h.length())
	r.Equal(uint32(1), h.bits(16, 1))

	// a length that fits clears the truncated flag
	h.setBits(17, 7, 40)
	Crypt(s[:])
	r.Equal(uint32(40), h.length())
	r.Equal(uint32(0), h.bits(16, 1))
}

func TestScalarMult(t *testing.T) {
	t.Parallel()
	r := require.New(t)
	s := newState(t, 3, 3)
	before := *s

	ScalarMult(s)

	pub := hash.ScalarMultBase(before[32:64])
	expected := hash.ScalarMult(before[0:32], pub[:])
	r.Equal(expected[:], s[64:96])
	r.Equal(before[:64], s[:64])
	r.Equal(before[96:], s[96:])
}

func TestFinalize(t *testing.T) {
	t.Parallel()
	s := newState(t, 4, 4)
	expected := hash.Sum256(s[:])
	Finalize(s)
	require.Equal(t, expected[:], s[0:32])
}
