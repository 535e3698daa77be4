package announce

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/spacemeshos/packetcrypt/cryptocycle"
	"github.com/spacemeshos/packetcrypt/difficulty"
	"github.com/spacemeshos/packetcrypt/hash"
)

const testTarget = difficulty.MaxTarget

var testParentHash = func() []byte {
	h := hash.Sum256([]byte("parent block"))
	return h[:]
}()

// merkleLevels builds the item merkle tree; levels[MerkleDepth][0] is the root.
func merkleLevels(leaves [][64]byte) [][][64]byte {
	levels := [][][64]byte{leaves}
	var buf [128]byte
	for len(levels[len(levels)-1]) > 1 {
		prev := levels[len(levels)-1]
		next := make([][64]byte, len(prev)/2)
		for i := range next {
			copy(buf[:64], prev[2*i][:])
			copy(buf[64:], prev[2*i+1][:])
			next[i] = hash.Sum512(buf[:])
		}
		levels = append(levels, next)
	}
	return levels
}

func setBranch(ann []byte, levels [][][64]byte, itemNo uint64) {
	for lvl := 0; lvl < MerkleDepth; lvl++ {
		copy(ann[branchOffset+64*lvl:], levels[lvl][itemNo^1][:])
		itemNo >>= 1
	}
}

func setSoftNonce(ann []byte, nonce uint32) {
	ann[1], ann[2], ann[3] = byte(nonce), byte(nonce>>8), byte(nonce>>16)
}

func newHeader(version uint8, parentHeight uint32) []byte {
	ann := make([]byte, Size)
	ann[0] = version
	binary.LittleEndian.PutUint32(ann[8:], testTarget)
	binary.LittleEndian.PutUint32(ann[12:], parentHeight)
	for i := 24; i < 56; i++ {
		ann[i] = byte(i)
	}
	return ann
}

// mined holds announcements which share one item table and differ only in
// their soft nonce.
type mined struct {
	valid   []byte
	weakPow []byte
}

// mine searches soft nonces until it finds one whose final hash meets the
// target and one whose hash does not.
func mine(ann []byte, levels [][][64]byte, maxNonce uint32, w func() *work, finish func(ann []byte, st *cryptocycle.State, itemNo uint64, item *[ItemSize]byte) bool) (*mined, error) {
	m := &mined{}
	for nonce := uint32(0); nonce <= maxNonce && (m.valid == nil || m.weakPow == nil); nonce++ {
		setSoftNonce(ann, nonce)
		st, itemNo, item, err := w().run(nonce)
		if err != nil {
			continue
		}
		out := make([]byte, Size)
		copy(out, ann)
		setBranch(out, levels, itemNo)
		if !finish(out, st, itemNo, item) {
			continue
		}
		if difficulty.CheckHash(st[:32], testTarget) {
			if m.valid == nil {
				m.valid = out
			}
		} else if m.weakPow == nil {
			m.weakPow = out
		}
	}
	if m.valid == nil || m.weakPow == nil {
		return nil, errors.New("nonce space exhausted")
	}
	return m, nil
}

// mineV0 builds the full version 0 item table for a fixed header and mines it.
var mineV0 = sync.OnceValues(func() (*mined, error) {
	ann := newHeader(0, 1000)
	w := newWork(Announcement(ann), testParentHash)

	leaves := make([][64]byte, TableSize)
	for i := range leaves {
		item := mkItem(uint32(i), w.hash0[:32])
		leaves[i] = hash.Sum512(item[:])
	}
	levels := merkleLevels(leaves)
	copy(ann[rootOffset:], levels[MerkleDepth][0][:])

	return mine(ann, levels, 1<<16,
		func() *work { return newWork(Announcement(ann), testParentHash) },
		func(out []byte, _ *cryptocycle.State, _ uint64, item *[ItemSize]byte) bool {
			copy(out[item4Offset:], item[:item4Size])
			return true
		})
})

// mineV1 builds the version 1 item table from the header program, then
// mines and encrypts the branch with the final state.
var mineV1 = sync.OnceValues(func() (*mined, error) {
	for attempt := uint32(0); attempt < 16; attempt++ {
		ann := newHeader(1, v1MinParentHeight+10)
		binary.LittleEndian.PutUint32(ann[4:], attempt)
		w := newWork(Announcement(ann), testParentHash)
		p, err := newProgram(w.hash0[:32])
		if err != nil {
			continue
		}

		leaves := make([][64]byte, TableSize)
		broken := make(map[uint64]bool)
		for i := range leaves {
			item, err := p.mkItem2(uint64(i), w.hash0[32:])
			if err != nil {
				broken[uint64(i)] = true
				continue
			}
			leaves[i] = hash.Sum512(item[:])
		}
		levels := merkleLevels(leaves)
		copy(ann[rootOffset:], levels[MerkleDepth][0][:])

		v1 := newWork(Announcement(ann), testParentHash)
		if err := v1.prepareV1(); err != nil {
			continue
		}
		m, err := mine(ann, levels, difficulty.MaxSoftNonce(testTarget),
			func() *work { return v1 },
			func(out []byte, st *cryptocycle.State, itemNo uint64, _ *[ItemSize]byte) bool {
				if broken[itemNo] {
					return false
				}
				copy(out, decrypt(out, st))
				return true
			})
		if err == nil {
			return m, nil
		}
	}
	return nil, errors.New("no usable version 1 header")
})
