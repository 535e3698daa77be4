// Package hash wraps the primitives PacketCrypt is built from: unkeyed
// blake2b, the chacha20 IETF stream, the poly1305 one-time authenticator and
// curve25519 scalar multiplication.
package hash

import (
	"encoding/binary"

	"github.com/cloudflare/circl/dh/x25519"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"
)

const (
	// Size256 is the size of a short digest.
	Size256 = blake2b.Size256
	// Size512 is the size of a long digest.
	Size512 = blake2b.Size

	KeySize   = chacha20.KeySize
	NonceSize = chacha20.NonceSize
	TagSize   = poly1305.TagSize

	expandTag0 = 0x455F4350 // "PC_E"
	expandTag1 = 0x444E5058 // "XPND"
)

// Sum256 computes the 32 byte blake2b digest of data.
func Sum256(data []byte) [Size256]byte {
	return blake2b.Sum256(data)
}

// Sum512 computes the 64 byte blake2b digest of data.
func Sum512(data []byte) [Size512]byte {
	return blake2b.Sum512(data)
}

// Sum256Into writes the 32 byte digest of data into out.
// out may alias data.
func Sum256Into(out, data []byte) {
	h := blake2b.Sum256(data)
	copy(out[:Size256], h[:])
}

// Sum512Into writes the 64 byte digest of data into out.
// out may alias data.
func Sum512Into(out, data []byte) {
	h := blake2b.Sum512(data)
	copy(out[:Size512], h[:])
}

// Keystream fills buf with the chacha20 IETF keystream for key and nonce,
// starting at block 0.
func Keystream(buf, nonce, key []byte) {
	c := newCipher(key, nonce)
	clear(buf)
	c.XORKeyStream(buf, buf)
}

// XORCounter XORs buf in place with the keystream for key and nonce starting
// at block counter.
func XORCounter(buf, nonce []byte, counter uint32, key []byte) {
	c := newCipher(key, nonce)
	c.SetCounter(counter)
	c.XORKeyStream(buf, buf)
}

// Expand deterministically fills buf from a 32 byte seed. num selects an
// independent stream for the same seed.
func Expand(buf, seed []byte, num uint32) {
	var nonce [NonceSize]byte
	binary.LittleEndian.PutUint32(nonce[0:], num)
	binary.LittleEndian.PutUint32(nonce[4:], expandTag0)
	binary.LittleEndian.PutUint32(nonce[8:], expandTag1)
	Keystream(buf, nonce[:], seed)
}

func newCipher(key, nonce []byte) *chacha20.Cipher {
	c, err := chacha20.NewUnauthenticatedCipher(key[:KeySize], nonce[:NonceSize])
	if err != nil {
		// key and nonce sizes are fixed above.
		panic(err)
	}
	return c
}

// MAC is a poly1305 one-time authenticator.
type MAC struct {
	mac *poly1305.MAC
}

// NewMAC keys a one-time authenticator with the first 32 bytes of key.
func NewMAC(key []byte) *MAC {
	var k [32]byte
	copy(k[:], key)
	return &MAC{mac: poly1305.New(&k)}
}

func (m *MAC) Write(p []byte) {
	_, _ = m.mac.Write(p)
}

// Sum writes the 16 byte tag into out.
func (m *MAC) Sum(out []byte) {
	tag := m.mac.Sum(nil)
	copy(out[:TagSize], tag)
}

// ScalarMultBase computes scalar*G on curve25519.
func ScalarMultBase(scalar []byte) [32]byte {
	var pub, sec x25519.Key
	copy(sec[:], scalar)
	x25519.KeyGen(&pub, &sec)
	return pub
}

// ScalarMult computes scalar*point on curve25519.
func ScalarMult(scalar, point []byte) [32]byte {
	var out, sec, pub x25519.Key
	copy(sec[:], scalar)
	copy(pub[:], point)
	x25519.Shared(&out, &sec, &pub)
	return out
}
