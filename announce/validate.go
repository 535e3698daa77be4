package announce

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/spacemeshos/packetcrypt/cryptocycle"
	"github.com/spacemeshos/packetcrypt/difficulty"
	"github.com/spacemeshos/packetcrypt/hash"
	"github.com/spacemeshos/packetcrypt/randgen"
	"github.com/spacemeshos/packetcrypt/randhash"
)

const cycleRounds = 4

// Hash returns the 32 byte blake2b digest identifying an announcement.
func Hash(ann []byte) [32]byte {
	return hash.Sum256(ann)
}

// Validate checks the proof of work and merkle inclusion of one announcement
// mined on top of the block with hash parentHash. pcpVersion is the
// PacketCrypt proof version of the block carrying it.
//
// Buffers of the wrong size are reported as ResultInvalid.
func Validate(ann, parentHash []byte, pcpVersion uint32) Result {
	if len(ann) != Size || len(parentHash) != ParentHashSize {
		return ResultInvalid
	}
	a := Announcement(ann)
	version := a.Version()
	if version > 0 && a.ParentHeight() < v1MinParentHeight {
		return ResultVersionNotAllowed
	}
	if pcpVersion > 1 && version == 0 {
		return ResultVersionMismatch
	}

	w := newWork(a, parentHash)
	if version > 0 {
		if a.SoftNonce() > difficulty.MaxSoftNonce(a.WorkBits()) {
			return ResultSoftNonceHigh
		}
		if err := w.prepareV1(); err != nil {
			return ResultInvalid
		}
	}

	st, itemNo, item, err := w.run(a.SoftNonce())
	if err != nil {
		return ResultInvalid
	}

	if version > 0 {
		a = decrypt(a, st)
		if !allZero(a[item4Offset:]) {
			return ResultInvalidItem4
		}
		// The merkle tree commits to items built from the header hash,
		// not the ones that were mixed into the state.
		p, err := newProgram(w.hash0[:32])
		if err != nil {
			return ResultInvalid
		}
		if item, err = p.mkItem2(itemNo, w.hash0[32:]); err != nil {
			return ResultInvalid
		}
	} else if !bytes.Equal(item[:item4Size], a[item4Offset:]) {
		return ResultInvalidItem4
	}

	if !isItemValid(a[branchOffset:], hash.Sum512(item[:]), itemNo) {
		return ResultInvalid
	}
	if !difficulty.CheckHash(st[:32], a.WorkBits()) {
		return ResultInsufficientPow
	}
	return ResultOK
}

// work carries the values derived from an announcement header that the
// CryptoCycle rounds depend on.
type work struct {
	ann Announcement
	// hash0 binds the header to the parent block, hash1 additionally
	// binds the merkle root.
	hash0  [64]byte
	hash1  [64]byte
	v1Seed [64]byte
	prog   *program
}

func newWork(ann Announcement, parentHash []byte) *work {
	var buf [hashInputSize]byte
	copy(buf[:headerSize], ann[:headerSize])
	copy(buf[headerSize:], parentHash[:ParentHashSize])
	clear(buf[1:4])

	w := &work{ann: ann}
	w.hash0 = hash.Sum512(buf[:])
	copy(buf[headerSize:], ann.MerkleRoot())
	w.hash1 = hash.Sum512(buf[:])
	return w
}

// prepareV1 derives the program which builds version 1 items.
func (w *work) prepareV1() error {
	var seed [128]byte
	copy(seed[:64], w.ann.MerkleRoot())
	copy(seed[64:], w.hash0[:])
	w.v1Seed = hash.Sum512(seed[:])

	p, err := newProgram(w.v1Seed[:32])
	if err != nil {
		return fmt.Errorf("generate item program: %w", err)
	}
	w.prog = p
	return nil
}

// run mixes four table items selected by the evolving state into a
// CryptoCycle seeded with hash1 and softNonce. It returns the finalized
// state together with the number and content of the last item.
func (w *work) run(softNonce uint32) (*cryptocycle.State, uint64, *[ItemSize]byte, error) {
	st := new(cryptocycle.State)
	cryptocycle.Initialize(st, w.hash1[:32], uint64(softNonce))

	var (
		itemNo uint64
		item   *[ItemSize]byte
		err    error
	)
	for i := 0; i < cycleRounds; i++ {
		itemNo = cryptocycle.ItemNumber(st) % TableSize
		if w.prog != nil {
			if item, err = w.prog.mkItem2(itemNo, w.v1Seed[32:]); err != nil {
				return nil, 0, nil, err
			}
		} else {
			item = mkItem(uint32(itemNo), w.hash0[:32])
			code, err := randgen.Generate(item[ItemSize-32:])
			if err != nil {
				return nil, 0, nil, fmt.Errorf("item %d: %w", itemNo, err)
			}
			if err := randhash.Interpret(code, st[:], itemWords(item), v0InterpCycles); err != nil {
				return nil, 0, nil, fmt.Errorf("item %d: %w", itemNo, err)
			}
		}
		cryptocycle.Update(st, item[:], nil)
	}
	cryptocycle.Finalize(st)
	return st, itemNo, item, nil
}

// decrypt returns a copy of ann with the merkle branch and the trailing 40
// bytes XORed with the finalized state, as version 1 miners encrypt them.
func decrypt(ann Announcement, st *cryptocycle.State) Announcement {
	out := make(Announcement, Size)
	copy(out, ann)
	j := 0
	xor := func(off int) {
		v := binary.LittleEndian.Uint64(out[off:]) ^ binary.LittleEndian.Uint64(st[8*j:])
		binary.LittleEndian.PutUint64(out[off:], v)
		j++
	}
	for off := branchOffset; off < rootOffset; off += 8 {
		xor(off)
	}
	for off := item4Offset; off < Size; off += 8 {
		xor(off)
	}
	return out
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
