package announce

import (
	"bytes"
	"math/bits"

	"github.com/spacemeshos/packetcrypt/hash"
	"github.com/spacemeshos/packetcrypt/signing"
)

// ContentBlockSize is the leaf size of the content merkle tree.
const ContentBlockSize = 32

// CheckSignature verifies the ed25519 signature over an announcement.
// Announcements without a signing key need no signature.
func CheckSignature(ann, sig []byte) bool {
	a := Announcement(ann)
	if !a.HasSigningKey() {
		return true
	}
	return signing.Verify(a.SigningKey(), ann, sig) == nil
}

// contentWalk visits the levels of the content tree from the leaf selected
// by proofIdx up to the root, calling fn for every level where the sibling
// subtree holds content and so must be supplied by the proof.
func contentWalk(length, proofIdx uint32, fn func(right bool)) {
	total := length / ContentBlockSize
	if total*ContentBlockSize < length {
		total++
	}
	block := uint64(proofIdx % total)
	blockSize := uint64(ContentBlockSize)
	for i := 0; i < log2ceil(uint64(total)); i++ {
		if blockSize*(block^1) < uint64(length) {
			fn(block&1 == 1)
		}
		block >>= 1
		blockSize <<= 1
	}
}

// ContentProofSize returns the number of bytes a content proof for proofIdx
// occupies: the proven block followed by one hash per level whose sibling
// holds content. Content of up to one block needs no proof.
func ContentProofSize(contentLength, proofIdx uint32) int {
	if contentLength <= ContentBlockSize {
		return 0
	}
	n := ContentBlockSize
	contentWalk(contentLength, proofIdx, func(bool) { n += hash.Size256 })
	return n
}

// CheckContentProof verifies that proof, a content block and its sibling
// hashes, folds up to the content hash of ann. The proven block is selected
// by proofIdx modulo the number of blocks.
func CheckContentProof(ann []byte, proofIdx uint32, proof []byte) bool {
	if len(ann) != Size {
		return false
	}
	a := Announcement(ann)
	length := a.ContentLength()
	if length == 0 || len(proof) < ContentBlockSize {
		return false
	}

	var cur [hash.Size256]byte
	copy(cur[:], proof[:ContentBlockSize])
	off := ContentBlockSize
	ok := true
	var buf [2 * hash.Size256]byte
	contentWalk(length, proofIdx, func(right bool) {
		if !ok || off+hash.Size256 > len(proof) {
			ok = false
			return
		}
		sibling := proof[off : off+hash.Size256]
		off += hash.Size256
		if right {
			copy(buf[32:], cur[:])
			copy(buf[:32], sibling)
		} else {
			copy(buf[:32], cur[:])
			copy(buf[32:], sibling)
		}
		cur = hash.Sum256(buf[:])
	})
	return ok && bytes.Equal(cur[:], a.ContentHash())
}

func contentLevels(content []byte) [][][hash.Size256]byte {
	var level [][hash.Size256]byte
	for off := 0; off < len(content); off += ContentBlockSize {
		var b [hash.Size256]byte
		copy(b[:], content[off:])
		level = append(level, b)
	}
	levels := [][][hash.Size256]byte{level}
	var buf [2 * hash.Size256]byte
	for len(level) > 1 {
		next := make([][hash.Size256]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			copy(buf[:32], level[i][:])
			copy(buf[32:], level[i+1][:])
			next = append(next, hash.Sum256(buf[:]))
		}
		levels = append(levels, next)
		level = next
	}
	return levels
}

// ContentRoot returns the content hash a miner places in an announcement
// carrying content. Content of at most one block is its own hash, zero padded.
func ContentRoot(content []byte) [hash.Size256]byte {
	if len(content) == 0 {
		return [hash.Size256]byte{}
	}
	levels := contentLevels(content)
	return levels[len(levels)-1][0]
}

// ContentProof builds the proof CheckContentProof expects for the block
// selected by proofIdx.
func ContentProof(content []byte, proofIdx uint32) []byte {
	if len(content) == 0 {
		return nil
	}
	levels := contentLevels(content)
	block := int(proofIdx % uint32(len(levels[0])))
	proof := append([]byte(nil), levels[0][block][:]...)
	for _, level := range levels[:len(levels)-1] {
		if sib := block ^ 1; sib < len(level) {
			proof = append(proof, level[sib][:]...)
		}
		block >>= 1
	}
	return proof
}

func log2ceil(x uint64) int {
	if x <= 1 {
		return 0
	}
	return bits.Len64(x - 1)
}
