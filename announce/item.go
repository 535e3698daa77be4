package announce

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/spacemeshos/packetcrypt/cryptocycle"
	"github.com/spacemeshos/packetcrypt/hash"
	"github.com/spacemeshos/packetcrypt/randgen"
	"github.com/spacemeshos/packetcrypt/randhash"
)

const (
	itemHashCount  = ItemSize / 64
	memocycles     = 2
	progmemWords   = 8192 / 4
	itemMemWindow  = progmemWords - randhash.MemoryWords
	v0InterpCycles = 4
	v1InterpCycles = 2
)

// mkItem builds a version 0 table item: a chain of 16 blake2b-512 digests
// rooted in the expanded seed, then mixed by two memory-hard passes.
func mkItem(itemNo uint32, seed []byte) *[ItemSize]byte {
	item := new([ItemSize]byte)
	hash.Expand(item[0:64], seed, itemNo)
	for i := 1; i < itemHashCount; i++ {
		hash.Sum512Into(item[64*i:], item[64*(i-1):64*i])
	}
	memocycle(item[:])
	return item
}

func memocycle(item []byte) {
	var tmp [128]byte
	for c := 0; c < memocycles; c++ {
		for i := 0; i < itemHashCount; i++ {
			p := (i - 1 + itemHashCount) % itemHashCount
			q := int(binary.LittleEndian.Uint32(item[64*p:]) % (itemHashCount - 1))
			j := (i + q) % itemHashCount
			copy(tmp[0:64], item[64*p:64*p+64])
			copy(tmp[64:128], item[64*j:64*j+64])
			hash.Sum512Into(item[64*i:], tmp[:])
		}
	}
}

// program is a generated RandHash program together with the 8 KiB memory it
// is laid over.
type program struct {
	code []uint32
	mem  []uint32
}

// newProgram expands seed into the program memory and overlays the program
// generated from the same seed on its first words.
func newProgram(seed []byte) (*program, error) {
	var buf [progmemWords * 4]byte
	hash.Expand(buf[:], seed, 0)
	mem := make([]uint32, progmemWords)
	for i := range mem {
		mem[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
	code, err := randgen.Generate(seed)
	if err != nil {
		return nil, err
	}
	copy(mem, code)
	return &program{code: code, mem: mem}, nil
}

// mkItem2 builds a version 1 table item by running the program over a
// CryptoCycle state seeded with the item number.
func (p *program) mkItem2(itemNo uint64, seed []byte) (*[ItemSize]byte, error) {
	st := new(cryptocycle.State)
	cryptocycle.Initialize(st, seed, itemNo)
	begin := itemNo % itemMemWindow
	if err := randhash.Interpret(p.code, st[:], p.mem[begin:begin+randhash.MemoryWords], v1InterpCycles); err != nil {
		return nil, fmt.Errorf("item %d: %w", itemNo, err)
	}
	cryptocycle.MakeFuzzable(st[:])
	cryptocycle.Crypt(st[:])
	item := new([ItemSize]byte)
	copy(item[:], st[:ItemSize])
	return item, nil
}

// itemWords reinterprets an item as the 256 little endian words a program
// addresses as memory.
func itemWords(item *[ItemSize]byte) []uint32 {
	words := make([]uint32, ItemSize/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(item[4*i:])
	}
	return words
}

// isItemValid walks the merkle branch from the hash of item itemNo and
// compares the result with the root stored after the branch.
func isItemValid(branch []byte, itemHash [64]byte, itemNo uint64) bool {
	var b [128]byte
	copy(b[(itemNo&1)*64:], itemHash[:])
	for i := 0; i < MerkleDepth; i++ {
		copy(b[((itemNo&1)^1)*64:], branch[64*i:64*i+64])
		itemNo >>= 1
		hash.Sum512Into(b[(itemNo&1)*64:], b[:])
	}
	return bytes.Equal(b[(itemNo&1)*64:(itemNo&1)*64+64], branch[64*MerkleDepth:64*MerkleDepth+64])
}
