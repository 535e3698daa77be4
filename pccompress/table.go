// Package pccompress verifies and produces the compact proof which ties the
// four announcements of a block to the announcement merkle root.
//
// The announcement tree is a binary tree over count+1 leaves, leaf 0 being a
// zero entry. Every entry carries a hash and the [start, end) slice of the
// 64 bit number line it covers, so a leaf's range runs from its own hash
// prefix to the next leaf's. The proof only carries the hashes and range
// lengths of the siblings which can not be computed from the four
// announcements themselves.
package pccompress

import (
	"encoding/binary"
	"math/bits"
)

// Entry flags.
const (
	flagComputable uint16 = 1 << iota
	flagPadEntry
	flagLeaf
	flagRight
	flagPadSibling
	flagFirstEntry
)

const (
	flagHasHash uint16 = 1 << (8 + iota)
	flagHasRange
	flagHasStart
)

// NumAnns is the number of announcements a block commits to.
const NumAnns = 4

// EntrySize is the serialized size of an Entry.
const EntrySize = 48

const none = -1

// Entry is one node of the announcement tree.
type Entry struct {
	Hash  [32]byte
	Start uint64
	End   uint64
}

func (e *Entry) prefix() uint64 {
	return binary.LittleEndian.Uint64(e.Hash[:8])
}

func (e *Entry) marshal(b []byte) {
	copy(b, e.Hash[:])
	binary.LittleEndian.PutUint64(b[32:], e.Start)
	binary.LittleEndian.PutUint64(b[40:], e.End)
}

func (e *Entry) isPad() bool {
	if e.Start != ^uint64(0) || e.End != ^uint64(0) {
		return false
	}
	for _, b := range e.Hash {
		if b != 0xff {
			return false
		}
	}
	return true
}

func padEntry() Entry {
	e := Entry{Start: ^uint64(0), End: ^uint64(0)}
	for i := range e.Hash {
		e.Hash[i] = 0xff
	}
	return e
}

type node struct {
	left, right, parent int
	flags               uint16
	entry               Entry

	// bits is the index of the leftmost leaf below the node and depth its
	// distance from the leaves.
	bits  uint64
	depth int
}

func (n *node) has(flags uint16) bool { return n.flags&flags == flags }

// explicitRange reports whether the proof carries the range length of n.
// Right leaves always need one; otherwise only siblings which are neither
// computable nor next to padding do.
func (n *node) explicitRange() bool {
	if n.flags&(flagLeaf|flagRight|flagPadEntry) == flagLeaf|flagRight {
		return true
	}
	return n.flags&(flagLeaf|flagComputable|flagPadEntry|flagPadSibling) == 0
}

// table holds the part of the tree needed to hash four leaves up to the root,
// in depth first order starting with the root.
type table struct {
	height int
	nodes  []node
}

func log2ceil(x uint64) int {
	if x <= 1 {
		return 0
	}
	return bits.Len64(x - 1)
}

// newTable lays out the entries needed to prove the leaves anns of a tree
// with count leaves. All leaves must be below count.
func newTable(count uint64, anns [NumAnns]uint64) *table {
	t := &table{height: log2ceil(count)}
	t.nodes = make([]node, 0, t.height*NumAnns*3+1)
	t.build(anns, 0, t.height, none, count)
	return t
}

func (t *table) build(anns [NumAnns]uint64, pos uint64, depth, parent int, count uint64) int {
	num := len(t.nodes)
	t.nodes = append(t.nodes, node{left: none, right: none, parent: parent, bits: pos, depth: depth})

	mask := ^uint64(0) << depth
	var flags uint16
	if (pos>>depth)&1 != 0 {
		flags |= flagRight
	}
	if depth == 0 {
		flags |= flagLeaf
	}
	if pos&mask == 0 {
		flags |= flagFirstEntry
	}

	for _, ann := range anns {
		if (ann^pos)&mask != 0 {
			continue
		}
		t.nodes[num].flags = flags | flagComputable
		if depth == 0 {
			return num
		}
		left := t.build(anns, pos, depth-1, num, count)
		right := t.build(anns, pos|1<<(depth-1), depth-1, num, count)
		t.nodes[num].left = left
		t.nodes[num].right = right
		if t.nodes[right].flags&flagPadEntry != 0 {
			t.nodes[left].flags |= flagPadSibling
		}
		return num
	}

	if pos >= count {
		t.nodes[num].flags = flags | flagPadEntry | flagHasHash | flagHasRange | flagHasStart
		t.nodes[num].entry = padEntry()
		return num
	}
	t.nodes[num].flags = flags
	return num
}

func reverse(x uint64, height int) uint64 {
	if height == 0 {
		return 0
	}
	return bits.Reverse64(x) >> (64 - height)
}

// leaf walks from the root to the leaf for index ann.
func (t *table) leaf(ann uint64) int {
	path := reverse(ann, t.height)
	n := 0
	for i := 0; i < t.height; i++ {
		next := t.nodes[n].left
		if path&1 != 0 {
			next = t.nodes[n].right
		}
		if next == none {
			return none
		}
		n = next
		path >>= 1
	}
	if t.nodes[n].flags&(flagLeaf|flagComputable) == 0 {
		return none
	}
	return n
}

func (t *table) sibling(n int) int {
	p := t.nodes[n].parent
	if p == none {
		return none
	}
	if t.nodes[p].left == n {
		return t.nodes[p].right
	}
	return t.nodes[p].left
}
