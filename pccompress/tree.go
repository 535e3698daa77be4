package pccompress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/spacemeshos/packetcrypt/hash"
)

// ErrBadHashes is returned when announcement hashes can not be placed in a tree:
// their 64 bit prefixes must be distinct and neither zero nor all ones.
var ErrBadHashes = errors.New("announcement hashes can not form a tree")

// Tree is a fully built announcement tree, as kept by a block miner.
type Tree struct {
	anns   [][32]byte
	levels [][]Entry
}

// NewTree builds the tree over annHashes. Hashes are ordered by their little
// endian 64 bit prefix; Hash(i) returns the i-th announcement in that order.
func NewTree(annHashes [][32]byte) (*Tree, error) {
	if len(annHashes) == 0 {
		return nil, ErrBadIndex
	}
	anns := slices.Clone(annHashes)
	slices.SortFunc(anns, func(a, b [32]byte) int {
		pa, pb := binary.LittleEndian.Uint64(a[:8]), binary.LittleEndian.Uint64(b[:8])
		switch {
		case pa < pb:
			return -1
		case pa > pb:
			return 1
		}
		return bytes.Compare(a[:], b[:])
	})

	count := uint64(len(anns)) + 1
	height := log2ceil(count)
	leaves := make([]Entry, 1<<height)
	for i := range leaves {
		switch {
		case i == 0:
		case uint64(i) < count:
			leaves[i].Hash = anns[i-1]
			leaves[i].Start = leaves[i].prefix()
		default:
			leaves[i] = padEntry()
		}
	}
	for i := uint64(0); i < count; i++ {
		if i+1 < count {
			leaves[i].End = leaves[i+1].Start
		} else {
			leaves[i].End = ^uint64(0)
		}
		if leaves[i].End <= leaves[i].Start {
			return nil, fmt.Errorf("%w: leaf %d", ErrBadHashes, i)
		}
	}

	t := &Tree{anns: anns, levels: [][]Entry{leaves}}
	var buf [2 * EntrySize]byte
	for depth := 1; depth <= height; depth++ {
		below := t.levels[depth-1]
		level := make([]Entry, len(below)/2)
		for i := range level {
			if uint64(i)<<depth >= count {
				level[i] = padEntry()
				continue
			}
			l, r := &below[2*i], &below[2*i+1]
			l.marshal(buf[:EntrySize])
			r.marshal(buf[EntrySize:])
			level[i] = Entry{Hash: hash.Sum256(buf[:]), Start: l.Start, End: r.End}
		}
		t.levels = append(t.levels, level)
	}
	return t, nil
}

// Len returns the number of announcements in the tree.
func (t *Tree) Len() uint64 { return uint64(len(t.anns)) }

// Hash returns the hash of announcement i.
func (t *Tree) Hash(i uint64) [32]byte { return t.anns[i] }

// Root returns the hash a block commits to.
func (t *Tree) Root() [32]byte {
	var buf [EntrySize]byte
	t.levels[len(t.levels)-1][0].marshal(buf[:])
	return hash.Sum256(buf[:])
}

// Proof returns the proof blob for the announcements at annIndexes, taken
// modulo Len, which HashProof accepts.
func (t *Tree) Proof(annIndexes [NumAnns]uint64) ([]byte, error) {
	leaves, count, err := leafIndexes(t.Len(), annIndexes)
	if err != nil {
		return nil, err
	}
	tbl := newTable(count, leaves)

	var out []byte
	for i := range tbl.nodes {
		n := &tbl.nodes[i]
		e := &t.levels[n.depth][n.bits>>n.depth]
		if n.explicitRange() {
			out = binary.LittleEndian.AppendUint64(out, e.End-e.Start)
		}
		if n.flags&(flagHasHash|flagComputable) == 0 {
			out = append(out, e.Hash[:]...)
		}
	}
	return out, nil
}
