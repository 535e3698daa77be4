package pccompress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/spacemeshos/packetcrypt/hash"
)

var (
	ErrInvalidProof = errors.New("invalid announcement proof")
	ErrBadIndex     = errors.New("no announcements to prove")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidProof, fmt.Sprintf(format, args...))
}

// leafIndexes maps announcement indexes to tree leaves, skipping the zero
// leaf, and returns the number of leaves.
func leafIndexes(totalAnns uint64, annIndexes [NumAnns]uint64) ([NumAnns]uint64, uint64, error) {
	var leaves [NumAnns]uint64
	if totalAnns == 0 {
		return leaves, 0, ErrBadIndex
	}
	for i, idx := range annIndexes {
		leaves[i] = idx%totalAnns + 1
	}
	return leaves, totalAnns + 1, nil
}

// HashProof rebuilds the announcement tree root from the hashes of the four
// announcements at annIndexes (taken modulo totalAnns) and the compact proof
// blob, and returns the hash of the root entry.
func HashProof(annHashes [NumAnns][32]byte, totalAnns uint64, annIndexes [NumAnns]uint64, blob []byte) ([32]byte, error) {
	var out [32]byte
	leaves, count, err := leafIndexes(totalAnns, annIndexes)
	if err != nil {
		return out, err
	}
	t := newTable(count, leaves)

	annNodes := make([]int, NumAnns)
	for i, leaf := range leaves {
		n := t.leaf(leaf)
		if n == none {
			return out, invalid("no entry for leaf %d", leaf)
		}
		annNodes[i] = n
		t.nodes[n].entry.Hash = annHashes[i]
		t.nodes[n].flags |= flagHasHash
	}

	if err := t.consume(blob); err != nil {
		return out, err
	}
	for _, n := range annNodes {
		if err := t.leafRanges(n); err != nil {
			return out, err
		}
	}
	for _, n := range annNodes {
		if err := t.hashUp(n); err != nil {
			return out, err
		}
	}

	root := &t.nodes[0]
	if root.flags != flagHasStart|flagHasHash|flagHasRange|flagComputable|flagFirstEntry {
		return out, invalid("root not resolved, flags %#x", root.flags)
	}
	if root.entry.Start != 0 || root.entry.End != ^uint64(0) {
		return out, invalid("root covers [%d, %d)", root.entry.Start, root.entry.End)
	}
	var buf [EntrySize]byte
	root.entry.marshal(buf[:])
	return hash.Sum256(buf[:]), nil
}

// consume fills the range lengths and hashes carried by the proof, in table
// order. The blob must be used up exactly.
func (t *table) consume(blob []byte) error {
	off := 0
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.explicitRange() {
			if len(blob)-off < 8 {
				return invalid("proof truncated at entry %d", i)
			}
			n.entry.End = binary.LittleEndian.Uint64(blob[off:])
			off += 8
			n.flags |= flagHasRange
		}
		if n.flags&(flagHasHash|flagComputable) == 0 {
			if len(blob)-off < 32 {
				return invalid("proof truncated at entry %d", i)
			}
			copy(n.entry.Hash[:], blob[off:])
			off += 32
			n.flags |= flagHasHash
		}
	}
	if off != len(blob) {
		return invalid("%d trailing bytes", len(blob)-off)
	}
	return nil
}

// leafRanges derives start and end of an announcement leaf and its sibling.
// A leaf starts at its hash prefix; the right one of the pair carries its
// range length in the proof.
func (t *table) leafRanges(num int) error {
	e := &t.nodes[num]
	if !e.has(flagHasHash | flagLeaf) {
		return invalid("announcement entry %d is not a resolved leaf", num)
	}
	if e.flags&flagHasStart != 0 {
		// duplicate or neighbouring announcement
		return nil
	}
	sn := t.sibling(num)
	if sn == none {
		return invalid("announcement entry %d has no sibling", num)
	}
	sib := &t.nodes[sn]
	if sib.has(flagPadEntry | flagHasStart) {
		sib.entry.End = 0
		sib.flags &^= flagHasStart
	}
	if !sib.has(flagHasHash|flagLeaf) || sib.flags&flagHasStart != 0 {
		return invalid("sibling of announcement entry %d is not a resolved leaf", num)
	}

	e.entry.Start = e.entry.prefix()
	sib.entry.Start = sib.entry.prefix()
	if e.flags&flagRight != 0 {
		e.entry.End += e.entry.Start
		sib.entry.End = e.entry.Start
	} else {
		e.entry.End = sib.entry.Start
		sib.entry.End += sib.entry.Start
	}
	if e.entry.End <= e.entry.Start {
		return invalid("announcement entry %d has empty range", num)
	}
	e.flags |= flagHasStart | flagHasRange
	sib.flags |= flagHasStart | flagHasRange
	return nil
}

// hashUp hashes from an announcement leaf towards the root for as long as
// both children of the next parent are known.
func (t *table) hashUp(num int) error {
	if !t.nodes[num].has(flagHasHash | flagHasRange | flagHasStart) {
		return invalid("announcement entry %d is unresolved", num)
	}
	var buf [2 * EntrySize]byte
	for {
		e := &t.nodes[num]
		pn := e.parent
		if pn == none {
			return nil
		}
		parent := &t.nodes[pn]
		if parent.flags&flagHasHash != 0 {
			return nil
		}
		sib := &t.nodes[t.sibling(num)]
		if sib.flags&flagHasHash == 0 {
			// the walk from a later announcement completes this one
			return nil
		}
		if parent.flags&flagComputable == 0 || parent.flags&(flagHasHash|flagHasRange|flagHasStart) != 0 {
			return invalid("entry %d is not computable", pn)
		}

		right := e.flags&flagRight != 0
		if sib.flags&flagHasRange == 0 {
			sib.entry.End = ^uint64(0) - e.entry.End
			sib.flags |= flagHasRange
		}
		if sib.flags&flagHasStart == 0 {
			if right {
				sib.entry.Start = e.entry.Start - sib.entry.End
				sib.entry.End = e.entry.Start
			} else {
				sib.entry.Start = e.entry.End
				sib.entry.End += sib.entry.Start
			}
			sib.flags |= flagHasStart
			if sib.entry.End <= sib.entry.Start {
				return invalid("entry %d has empty range", t.sibling(num))
			}
		}

		l, r := &e.entry, &sib.entry
		if right {
			l, r = r, l
		}
		if r.Start != l.End {
			return invalid("ranges below entry %d do not meet", pn)
		}
		if (l.End <= l.Start && !l.isPad()) || (r.End <= r.Start && !r.isPad()) {
			return invalid("ranges below entry %d are empty", pn)
		}
		l.marshal(buf[:EntrySize])
		r.marshal(buf[EntrySize:])
		parent.entry.Hash = hash.Sum256(buf[:])
		parent.entry.Start = l.Start
		parent.entry.End = r.End
		parent.flags |= flagHasHash | flagHasRange | flagHasStart
		num = pn
	}
}
