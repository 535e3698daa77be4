package randhash

import "math/bits"

// lanes8 applies f to each byte of a and b independently.
func lanes8(a, b uint32, f func(x, y uint8) uint8) uint32 {
	var out uint32
	for s := 0; s < 32; s += 8 {
		out |= uint32(f(uint8(a>>s), uint8(b>>s))) << s
	}
	return out
}

func lanes16(a, b uint32, f func(x, y uint16) uint16) uint32 {
	return uint32(f(uint16(a), uint16(b))) | uint32(f(uint16(a>>16), uint16(b>>16)))<<16
}

// widen8 applies f to each byte pair, producing four 16 bit results.
func widen8(a, b uint32, f func(x, y uint8) uint16) uint64 {
	var out uint64
	for s := 0; s < 4; s++ {
		out |= uint64(f(uint8(a>>(8*s)), uint8(b>>(8*s)))) << (16 * s)
	}
	return out
}

func widen16(a, b uint32, f func(x, y uint16) uint32) uint64 {
	return uint64(f(uint16(a), uint16(b))) | uint64(f(uint16(a>>16), uint16(b>>16)))<<32
}

func mul64Signed(a, b uint64, aSigned, bSigned bool) (hi, lo uint64) {
	hi, lo = bits.Mul64(a, b)
	if aSigned && int64(a) < 0 {
		hi -= b
	}
	if bSigned && int64(b) < 0 {
		hi -= a
	}
	return hi, lo
}

func (m *machine) alu(insn uint32, op OpCode) error {
	switch {
	case op <= OpBswap32:
		a, err := m.regA(insn)
		if err != nil {
			return err
		}
		m.out1(unary(op, a))
		return nil

	case op <= OpXor:
		a, err := m.regA(insn)
		if err != nil {
			return err
		}
		b, err := m.regB(insn)
		if err != nil {
			return err
		}
		m.out1(binary32(op, a, b))
		return nil

	case op <= OpMulu32C:
		a, err := m.regA(insn)
		if err != nil {
			return err
		}
		b, err := m.regB(insn)
		if err != nil {
			return err
		}
		m.out2(carry32(op, a, b))
		return nil
	}

	a, err := m.regA2(insn)
	if err != nil {
		return err
	}
	b, err := m.regB2(insn)
	if err != nil {
		return err
	}
	if op <= OpMul64 {
		m.out2(binary64(op, a, b))
		return nil
	}
	var hi, lo uint64
	switch op {
	case OpAdd64C:
		lo, hi = bits.Add64(a, b, 0)
	case OpSub64C:
		var borrow uint64
		lo, borrow = bits.Sub64(a, b, 0)
		hi = -borrow
	case OpMul64C:
		hi, lo = mul64Signed(a, b, true, true)
	case OpMulsu64C:
		hi, lo = mul64Signed(a, b, true, false)
	case OpMulu64C:
		hi, lo = bits.Mul64(a, b)
	default:
		return ErrMalformed
	}
	m.out4(lo, hi)
	return nil
}

func unary(op OpCode, a uint32) uint32 {
	switch op {
	case OpPopcnt8:
		return lanes8(a, 0, func(x, _ uint8) uint8 { return uint8(bits.OnesCount8(x)) })
	case OpPopcnt16:
		return lanes16(a, 0, func(x, _ uint16) uint16 { return uint16(bits.OnesCount16(x)) })
	case OpPopcnt32:
		return uint32(bits.OnesCount32(a))
	case OpClz8:
		return lanes8(a, 0, func(x, _ uint8) uint8 { return uint8(bits.LeadingZeros8(x)) })
	case OpClz16:
		return lanes16(a, 0, func(x, _ uint16) uint16 { return uint16(bits.LeadingZeros16(x)) })
	case OpClz32:
		return uint32(bits.LeadingZeros32(a))
	case OpCtz8:
		return lanes8(a, 0, func(x, _ uint8) uint8 { return uint8(bits.TrailingZeros8(x)) })
	case OpCtz16:
		return lanes16(a, 0, func(x, _ uint16) uint16 { return uint16(bits.TrailingZeros16(x)) })
	case OpCtz32:
		return uint32(bits.TrailingZeros32(a))
	case OpBswap16:
		return lanes16(a, 0, func(x, _ uint16) uint16 { return bits.ReverseBytes16(x) })
	default:
		return bits.ReverseBytes32(a)
	}
}

func binary32(op OpCode, a, b uint32) uint32 {
	switch op {
	case OpAdd8:
		return lanes8(a, b, func(x, y uint8) uint8 { return x + y })
	case OpAdd16:
		return lanes16(a, b, func(x, y uint16) uint16 { return x + y })
	case OpAdd32:
		return a + b
	case OpSub8:
		return lanes8(a, b, func(x, y uint8) uint8 { return x - y })
	case OpSub16:
		return lanes16(a, b, func(x, y uint16) uint16 { return x - y })
	case OpSub32:
		return a - b
	case OpShll8:
		return lanes8(a, b, func(x, y uint8) uint8 { return x << (y & 7) })
	case OpShll16:
		return lanes16(a, b, func(x, y uint16) uint16 { return x << (y & 15) })
	case OpShll32:
		return a << (b & 31)
	case OpShrl8:
		return lanes8(a, b, func(x, y uint8) uint8 { return x >> (y & 7) })
	case OpShrl16:
		return lanes16(a, b, func(x, y uint16) uint16 { return x >> (y & 15) })
	case OpShrl32:
		return a >> (b & 31)
	case OpShra8:
		return lanes8(a, b, func(x, y uint8) uint8 { return uint8(int8(x) >> (y & 7)) })
	case OpShra16:
		return lanes16(a, b, func(x, y uint16) uint16 { return uint16(int16(x) >> (y & 15)) })
	case OpShra32:
		return uint32(int32(a) >> (b & 31))
	case OpRotl8:
		return lanes8(a, b, func(x, y uint8) uint8 { return bits.RotateLeft8(x, int(y&7)) })
	case OpRotl16:
		return lanes16(a, b, func(x, y uint16) uint16 { return bits.RotateLeft16(x, int(y&15)) })
	case OpRotl32:
		return bits.RotateLeft32(a, int(b&31))
	case OpMul8:
		return lanes8(a, b, func(x, y uint8) uint8 { return x * y })
	case OpMul16:
		return lanes16(a, b, func(x, y uint16) uint16 { return x * y })
	case OpMul32:
		return a * b
	case OpAnd:
		return a & b
	case OpOr:
		return a | b
	default:
		return a ^ b
	}
}

func carry32(op OpCode, a, b uint32) uint64 {
	switch op {
	case OpAdd8C:
		return widen8(a, b, func(x, y uint8) uint16 { return uint16(x) + uint16(y) })
	case OpAdd16C:
		return widen16(a, b, func(x, y uint16) uint32 { return uint32(x) + uint32(y) })
	case OpAdd32C:
		return uint64(a) + uint64(b)
	case OpSub8C:
		return widen8(a, b, func(x, y uint8) uint16 { return uint16(x) - uint16(y) })
	case OpSub16C:
		return widen16(a, b, func(x, y uint16) uint32 { return uint32(x) - uint32(y) })
	case OpSub32C:
		return uint64(a) - uint64(b)
	case OpMul8C:
		return widen8(a, b, func(x, y uint8) uint16 { return uint16(int16(int8(x)) * int16(int8(y))) })
	case OpMul16C:
		return widen16(a, b, func(x, y uint16) uint32 { return uint32(int32(int16(x)) * int32(int16(y))) })
	case OpMul32C:
		return uint64(int64(int32(a)) * int64(int32(b)))
	case OpMulsu8C:
		return widen8(a, b, func(x, y uint8) uint16 { return uint16(int16(int8(x)) * int16(y)) })
	case OpMulsu16C:
		return widen16(a, b, func(x, y uint16) uint32 { return uint32(int32(int16(x)) * int32(y)) })
	case OpMulsu32C:
		return uint64(int64(int32(a)) * int64(b))
	case OpMulu8C:
		return widen8(a, b, func(x, y uint8) uint16 { return uint16(x) * uint16(y) })
	case OpMulu16C:
		return widen16(a, b, func(x, y uint16) uint32 { return uint32(x) * uint32(y) })
	default:
		return uint64(a) * uint64(b)
	}
}

func binary64(op OpCode, a, b uint64) uint64 {
	switch op {
	case OpAdd64:
		return a + b
	case OpSub64:
		return a - b
	case OpShll64:
		return a << (b & 63)
	case OpShrl64:
		return a >> (b & 63)
	case OpShra64:
		return uint64(int64(a) >> (b & 63))
	case OpRotl64:
		return bits.RotateLeft64(a, int(b&63))
	case OpRotr64:
		return bits.RotateLeft64(a, -int(b&63))
	default:
		return a * b
	}
}
