package randhash

import "fmt"

// OpCode is the low byte of a RandHash instruction.
type OpCode uint8

const (
	OpInvalidZero OpCode = iota

	OpPopcnt8
	OpPopcnt16
	OpPopcnt32
	OpClz8
	OpClz16
	OpClz32
	OpCtz8
	OpCtz16
	OpCtz32

	OpBswap16
	OpBswap32

	OpAdd8
	OpAdd16
	OpAdd32
	OpSub8
	OpSub16
	OpSub32
	OpShll8
	OpShll16
	OpShll32
	OpShrl8
	OpShrl16
	OpShrl32
	OpShra8
	OpShra16
	OpShra32
	OpRotl8
	OpRotl16
	OpRotl32
	OpMul8
	OpMul16
	OpMul32

	OpAnd
	OpOr
	OpXor

	OpAdd8C
	OpAdd16C
	OpAdd32C
	OpSub8C
	OpSub16C
	OpSub32C
	OpMul8C
	OpMul16C
	OpMul32C
	OpMulsu8C
	OpMulsu16C
	OpMulsu32C
	OpMulu8C
	OpMulu16C
	OpMulu32C

	OpAdd64
	OpSub64
	OpShll64
	OpShrl64
	OpShra64
	OpRotl64
	OpRotr64
	OpMul64

	OpAdd64C
	OpSub64C
	OpMul64C
	OpMulsu64C
	OpMulu64C

	OpIn
	OpMemory

	OpLoop
	OpIfLikely
	OpIfRandom
	OpJmp
	OpEnd
)

var opNames = [...]string{
	"INVALID_ZERO",
	"POPCNT8", "POPCNT16", "POPCNT32",
	"CLZ8", "CLZ16", "CLZ32",
	"CTZ8", "CTZ16", "CTZ32",
	"BSWAP16", "BSWAP32",
	"ADD8", "ADD16", "ADD32",
	"SUB8", "SUB16", "SUB32",
	"SHLL8", "SHLL16", "SHLL32",
	"SHRL8", "SHRL16", "SHRL32",
	"SHRA8", "SHRA16", "SHRA32",
	"ROTL8", "ROTL16", "ROTL32",
	"MUL8", "MUL16", "MUL32",
	"AND", "OR", "XOR",
	"ADD8C", "ADD16C", "ADD32C",
	"SUB8C", "SUB16C", "SUB32C",
	"MUL8C", "MUL16C", "MUL32C",
	"MULSU8C", "MULSU16C", "MULSU32C",
	"MULU8C", "MULU16C", "MULU32C",
	"ADD64", "SUB64", "SHLL64", "SHRL64", "SHRA64", "ROTL64", "ROTR64", "MUL64",
	"ADD64C", "SUB64C", "MUL64C", "MULSU64C", "MULU64C",
	"IN", "MEMORY",
	"LOOP", "IF_LIKELY", "IF_RANDOM", "JMP", "END",
}

func (o OpCode) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("OpCode(%d)", uint8(o))
}

// Valid reports whether o may appear in a program.
func (o OpCode) Valid() bool {
	return o > OpInvalidZero && o <= OpEnd
}
