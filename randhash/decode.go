package randhash

// Instruction layout (bit 0 is the least significant):
//
//	[0:8]    opcode
//	[9:18]   register A
//	[18]     B is an immediate
//	[19]     immediate uses the widened encoding
//	[20:32]  register B or immediate
//
// MEMORY reuses bits [9:13] as carry, [13:17] as step and [17:32] as base.
// JMP holds its forward offset in bits [8:32].

func decodeOp(insn uint32) OpCode { return OpCode(insn & 0xff) }

func decodeRegA(insn uint32) uint32 { return (insn >> 9) & 0x1ff }

func decodeRegB(insn uint32) uint32 { return (insn >> 20) & 0x1ff }

func decodeHasImm(insn uint32) bool { return insn&(1<<18) != 0 }

func decodeMemoryBase(insn uint32) uint32 { return insn >> 17 }

func decodeMemoryStep(insn uint32) uint32 { return (insn >> 13) & 15 }

func decodeMemoryCarry(insn uint32) uint32 { return (insn >> 9) & 15 }

func decodeJmp(insn uint32) uint32 { return insn >> 8 }

// DecodeImm returns the immediate operand of insn.
//
// Small immediates are the sign extended top 12 bits. When bit 19 is set the
// 12 bits instead select two bit positions to set, whether to invert the
// result and whether to force the top bit, which reaches large and negative
// 64 bit constants.
func DecodeImm(insn uint32) int64 {
	if insn&(1<<19) == 0 {
		return int64(int32(insn) >> 20)
	}
	imm := insn >> 20
	ret := uint64(1) << (imm & 31)
	imm >>= 5
	ret ^= uint64(1) << (imm & 31)
	imm >>= 5
	ret ^= (uint64(imm&1) << 63) - 1
	imm >>= 1
	ret |= uint64(imm&1) << 63
	return int64(ret)
}
