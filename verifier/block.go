// Package verifier checks PacketCrypt block proofs: four announcements mixed
// with the block header into a proof of work, and a compact proof that the
// announcements belong to the set the block commits to.
package verifier

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/spacemeshos/packetcrypt/announce"
	"github.com/spacemeshos/packetcrypt/cryptocycle"
	"github.com/spacemeshos/packetcrypt/difficulty"
	"github.com/spacemeshos/packetcrypt/hash"
	"github.com/spacemeshos/packetcrypt/pccompress"
)

const (
	// HeaderSize is the size of a serialized block header.
	HeaderSize = 80
	// NumAnns is the number of announcements a block proof carries.
	NumAnns = pccompress.NumAnns

	nBitsOffset = 72

	// Proof version 2 is valid from this height, version 1 up to the other.
	pcpV2MinHeight = 113949
	pcpV1MaxHeight = 122621
	// Blocks this close to genesis accept announcements at their mined target.
	minAgingHeight = 3
)

var (
	ErrBadLength            = errors.New("bad buffer length")
	ErrContentProofShort    = errors.New("content proof is truncated")
	ErrContentProofDangling = errors.New("dangling bytes after the content proof")
)

// Block holds a block header and the PacketCrypt proof attached to it.
type Block struct {
	Header []byte
	Height uint32
	// Nonce is the proof nonce mined together with the announcements.
	Nonce uint32
	// Version is the PacketCrypt proof version.
	Version uint32

	Anns [NumAnns][]byte
	// Sigs are required for announcements carrying a signing key.
	Sigs [NumAnns][]byte
	// ContentProof concatenates the content proofs of announcements with
	// content longer than one block. Proof version 2 drops it.
	ContentProof []byte
	// AnnProof is the compact pccompress proof.
	AnnProof      []byte
	AnnMerkleRoot []byte
	// AnnLeastWork is the least announcement target the miner claims.
	AnnLeastWork uint32
	AnnCount     uint64
}

func (b *Block) checkLengths() error {
	if len(b.Header) != HeaderSize {
		return fmt.Errorf("%w: header is %d bytes", ErrBadLength, len(b.Header))
	}
	for i, ann := range b.Anns {
		if len(ann) != announce.Size {
			return fmt.Errorf("%w: announcement %d is %d bytes", ErrBadLength, i, len(ann))
		}
	}
	if len(b.AnnMerkleRoot) != 32 {
		return fmt.Errorf("%w: merkle root is %d bytes", ErrBadLength, len(b.AnnMerkleRoot))
	}
	return nil
}

// Target returns the compact block target from the header.
func (b *Block) Target() uint32 {
	return binary.LittleEndian.Uint32(b.Header[nBitsOffset:])
}

// ProofIndex selects the content block each announcement must prove.
func ProofIndex(header []byte, nonce uint32) uint32 {
	h := hash.Sum256(header)
	return binary.LittleEndian.Uint32(h[:]) ^ nonce
}

// ParentHashFunc returns the hash of the block at height, or false when it
// is unknown.
type ParentHashFunc func(height uint32) ([]byte, bool)

// annCheck reports whether announcement i, mined on the block at
// parentHeight, is valid.
type annCheck func(i int, parentHeight uint32) bool

// ValidateBlock checks the proof carried by b. If parentHash is not nil,
// every announcement is fully validated against its parent block,
// otherwise only its age and target are checked.
//
// The error is only set for buffers of the wrong size.
func ValidateBlock(b *Block, parentHash ParentHashFunc) (Result, error) {
	if err := b.checkLengths(); err != nil {
		return 0, err
	}
	var check annCheck
	if parentHash != nil {
		check = func(i int, parentHeight uint32) bool {
			h, ok := parentHash(parentHeight)
			return ok && announce.Validate(b.Anns[i], h, b.Version) == announce.ResultOK
		}
	}
	return validateBlock(b, check), nil
}

func validateBlock(b *Block, check annCheck) Result {
	if b.Version > 1 && b.Height < pcpV2MinHeight {
		return ResultPcpMismatch
	}
	if b.Version < 2 && b.Height > pcpV1MaxHeight {
		return ResultPcpMismatch
	}

	for i, ann := range b.Anns {
		if !announce.CheckSignature(ann, b.Sigs[i]) {
			return annResult(ResultAnnSigInvalid, i)
		}
	}

	var blocks [NumAnns][]byte
	if b.Version <= 1 {
		proofIdx := ProofIndex(b.Header, b.Nonce)
		proofs, failed, err := splitContentProof(b.ContentProof, proofIdx, b.Anns)
		switch {
		case errors.Is(err, ErrContentProofDangling):
			return ResultPcpInvalid
		case err != nil:
			return annResult(ResultAnnContentInvalid, failed)
		}
		for i, cp := range proofs {
			if cp == nil {
				continue
			}
			if !announce.CheckContentProof(b.Anns[i], proofIdx, cp) {
				return annResult(ResultAnnContentInvalid, i)
			}
			blocks[i] = cp[:announce.ContentBlockSize]
		}
	} else if len(b.ContentProof) != 0 {
		return ResultPcpInvalid
	}

	if !difficulty.IsMinAnnDiffOk(b.AnnLeastWork, b.Version) {
		return ResultBadCoinbase
	}

	powHash, indexes := mix(b, blocks)
	target := difficulty.EffectiveBlockTarget(b.Target(), b.AnnLeastWork, b.AnnCount, b.Version)
	chk := ResultInsufficientPow
	if difficulty.CheckHash(powHash[:], target) {
		chk = ResultOK
	}

	var annHashes [NumAnns][32]byte
	for i, ann := range b.Anns {
		a := announce.Announcement(ann)
		parentHeight := a.ParentHeight()
		if parentHeight > b.Height {
			return annResult(ResultAnnInvalid, i)
		}
		if check != nil && !check(i, parentHeight) {
			return annResult(ResultAnnInvalid, i)
		}
		effective := difficulty.DegradeAnnTarget(a.WorkBits(), b.Height-parentHeight, b.Version)
		if b.Height < minAgingHeight {
			effective = a.WorkBits()
		}
		if effective > b.AnnLeastWork {
			return annResult(ResultAnnInsufPow, i)
		}
		annHashes[i] = announce.Hash(ann)
	}

	root, err := pccompress.HashProof(annHashes, b.AnnCount, indexes, b.AnnProof)
	if err != nil {
		return ResultPcpInvalid
	}
	if !bytes.Equal(root[:], b.AnnMerkleRoot) {
		return ResultPcpMismatch
	}
	return chk
}

// mix runs the block CryptoCycle: the header hash and nonce seed the state,
// and the announcements are absorbed in order. It returns the proof of work
// hash and the item number observed before each announcement, which selects
// the announcement in the block's announcement set.
func mix(b *Block, contentBlocks [NumAnns][]byte) ([32]byte, [NumAnns]uint64) {
	var indexes [NumAnns]uint64
	hdrHash := hash.Sum256(b.Header)
	st := new(cryptocycle.State)
	cryptocycle.Initialize(st, hdrHash[:], uint64(b.Nonce))
	for i, ann := range b.Anns {
		indexes[i] = cryptocycle.ItemNumber(st)
		cryptocycle.Update(st, ann, contentBlocks[i])
	}
	cryptocycle.ScalarMult(st)
	cryptocycle.Finalize(st)

	var out [32]byte
	copy(out[:], st[:32])
	return out, indexes
}

// SplitContentProof cuts blob into the content proofs of the announcements
// whose content is longer than one block, in announcement order. Entries of
// the other announcements are nil.
func SplitContentProof(blob []byte, proofIdx uint32, anns [NumAnns][]byte) ([NumAnns][]byte, error) {
	proofs, _, err := splitContentProof(blob, proofIdx, anns)
	return proofs, err
}

func splitContentProof(blob []byte, proofIdx uint32, anns [NumAnns][]byte) ([NumAnns][]byte, int, error) {
	var proofs [NumAnns][]byte
	off := 0
	for i, ann := range anns {
		n := announce.ContentProofSize(announce.Announcement(ann).ContentLength(), proofIdx)
		if n == 0 {
			continue
		}
		if off+n > len(blob) {
			return proofs, i, fmt.Errorf("%w: announcement %d needs %d bytes at %d of %d", ErrContentProofShort, i, n, off, len(blob))
		}
		proofs[i] = blob[off : off+n]
		off += n
	}
	if off != len(blob) {
		return proofs, NumAnns, fmt.Errorf("%w: %d of %d bytes used", ErrContentProofDangling, off, len(blob))
	}
	return proofs, 0, nil
}
