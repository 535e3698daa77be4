// Package cryptocycle implements the PacketCrypt state mixer: a 2048 byte
// buffer that is repeatedly re-encrypted and authenticated as items are
// absorbed, and finally folded into a 32 byte proof-of-work hash.
//
// Layout of the state:
//
//	[0:12]    chacha20 nonce
//	[12:16]   header bits (additional zeros, trailing zeros, decrypt, add length, truncated, length)
//	[16:48]   chacha20 key; [16:32] receives the poly1305 tag
//	[48:]     associated data followed by the message
package cryptocycle

import (
	"encoding/binary"

	"github.com/spacemeshos/packetcrypt/hash"
)

const (
	StateSize   = 2048
	ItemSize    = 1024
	ContentSize = 32

	itemOffset    = 32
	contentOffset = itemOffset + ItemSize
	aeadOffset    = 48

	// The message is measured in 16 byte units and may not run past the
	// end of the state.
	maxMessageUnits = 125
)

// State is the mutable CryptoCycle buffer.
type State [StateSize]byte

// Initialize expands seed into the state, installs nonce in the first 8 bytes
// and fixes up the header.
func Initialize(s *State, seed []byte, nonce uint64) {
	hash.Expand(s[:], seed, 0)
	binary.LittleEndian.PutUint64(s[0:8], nonce)
	MakeFuzzable(s[:])
}

// MakeFuzzable rewrites the header word from pseudorandom state bytes so that
// the message length is at least 32 units.
func MakeFuzzable(s []byte) {
	data := binary.LittleEndian.Uint32(s[16:20])
	data = (data & 0x00FFFFFF) | (32 << 17)
	binary.LittleEndian.PutUint32(s[12:16], data)
}

// Update absorbs a 1024 byte item and an optional 32 byte content block and
// runs one crypt pass.
func Update(s *State, item, content []byte) {
	copy(s[itemOffset:itemOffset+ItemSize], item[:ItemSize])
	if content != nil {
		copy(s[contentOffset:contentOffset+ContentSize], content[:ContentSize])
	}
	MakeFuzzable(s[:])
	Crypt(s[:])
}

// ScalarMult stores (s[0:32] * (s[32:64] * G)) in s[64:96].
func ScalarMult(s *State) {
	pub := hash.ScalarMultBase(s[32:64])
	shared := hash.ScalarMult(s[0:32], pub[:])
	copy(s[64:96], shared[:])
}

// Finalize folds the state into its first 32 bytes.
func Finalize(s *State) {
	hash.Sum256Into(s[0:32], s[:])
}

// ItemNumber returns the item selector held in the state.
func ItemNumber(s *State) uint64 {
	return binary.LittleEndian.Uint64(s[16:24])
}

// Crypt performs one authenticated encryption (or decryption) pass over msg
// in place, as selected by the header bits.
func Crypt(msg []byte) {
	var block0 [64]byte
	hash.Keystream(block0[:], msg[0:12], msg[16:48])
	mac := hash.NewMAC(block0[:32])

	hdr := header(msg)
	aeadLen := int(hdr.addLen()) * 16
	msgLen := int(truncate(msg)) * 16
	tzc := int(hdr.trailingZeros())
	azc := uint64(hdr.additionalZeros())

	aead := msg[aeadOffset:]
	content := aead[aeadLen : aeadLen+msgLen]
	mac.Write(aead[:aeadLen])

	decrypt := hdr.decrypt()
	if decrypt {
		mac.Write(content)
	}

	hash.XORCounter(content, msg[0:12], 1, msg[16:48])

	if !decrypt {
		clear(content[msgLen-tzc:])
		mac.Write(content)
	}

	var lengths [16]byte
	binary.LittleEndian.PutUint64(lengths[0:], uint64(aeadLen)-azc)
	binary.LittleEndian.PutUint64(lengths[8:], uint64(msgLen-tzc))
	mac.Write(lengths[:])
	mac.Sum(msg[16:32])
}

type header []byte

func (h header) word() uint32 {
	return binary.LittleEndian.Uint32(h[12:16])
}

func (h header) bits(begin, count uint) uint32 {
	return (h.word() >> begin) & (1<<count - 1)
}

func (h header) setBits(begin, count uint, val uint32) {
	mask := uint32(1<<count-1) << begin
	data := (h.word() &^ mask) | ((val << begin) & mask)
	binary.LittleEndian.PutUint32(h[12:16], data)
}

func (h header) additionalZeros() uint32 { return h.bits(0, 4) }
func (h header) trailingZeros() uint32   { return h.bits(8, 4) }
func (h header) decrypt() bool           { return h.bits(12, 1) != 0 }
func (h header) addLen() uint32          { return h.bits(13, 3) }
func (h header) length() uint32          { return h.bits(17, 7) }

// truncate clamps the message length so that associated data plus message fit
// in the state and records whether clamping happened.
func truncate(msg []byte) uint32 {
	h := header(msg)
	length := h.length()
	finalLen := min(length, maxMessageUnits-h.addLen())
	truncated := uint32(0)
	if finalLen != length {
		truncated = 1
	}
	h.setBits(16, 1, truncated)
	h.setBits(17, 7, finalLen)
	return finalLen
}
