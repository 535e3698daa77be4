// Package randhash executes RandHash programs, the randomly generated
// bytecode which makes up the useful work of PacketCrypt.
package randhash

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MaxOps bounds the number of instructions fetched in one cycle.
	MaxOps = 20000
	// MemoryWords is the size of the read-only memory a program addresses.
	MemoryWords = 256
	// StateSize is the size of the hash state, split into input and output halves.
	StateSize = 2048

	hashWords = StateSize / 2 / 4
	sentinel  = ^uint32(0)
)

var (
	ErrMalformed = errors.New("malformed program")
	ErrTooLong   = errors.New("program exceeded the operation budget")
	ErrTooShort  = errors.New("program ended before its final scope closed")
	ErrBadLength = errors.New("bad buffer length")
)

// Interpret runs prog over ccState for the given number of cycles. Each cycle
// reads words from the first half of ccState and folds its output into the
// second half; the halves swap roles between cycles. memory is read-only.
func Interpret(prog []uint32, ccState []byte, memory []uint32, cycles int) error {
	if len(ccState) != StateSize {
		return fmt.Errorf("%w: state is %d bytes", ErrBadLength, len(ccState))
	}
	if len(memory) != MemoryWords {
		return fmt.Errorf("%w: memory is %d words", ErrBadLength, len(memory))
	}
	m := &machine{
		prog:    prog,
		memory:  memory,
		hashIn:  ccState[:StateSize/2],
		hashOut: ccState[StateSize/2:],
		stack:   make([]uint32, 0, 1024),
	}
	for i := 0; i < cycles; i++ {
		if err := m.cycle(); err != nil {
			return fmt.Errorf("cycle %d: %w", i, err)
		}
		m.hashIn, m.hashOut = m.hashOut, m.hashIn
	}
	return nil
}

// frame records what to do when the scope opened by LOOP or a branch closes.
type frame struct {
	loopPC int // -1 for branch bodies
	iter   int
	count  int
}

type machine struct {
	prog    []uint32
	memory  []uint32
	hashIn  []byte
	hashOut []byte

	stack    []uint32
	scopes   []int
	frames   []frame
	varCount int

	opCtr     int
	hashCtr   int
	loopCycle int
}

func (m *machine) cycle() error {
	m.opCtr = 0
	m.hashCtr = 0
	m.stack = m.stack[:0]
	m.scopes = m.scopes[:0]
	m.frames = m.frames[:0]
	m.varCount = 0

	pc := 0
	for {
		if pc < 0 || pc >= len(m.prog) {
			return ErrTooShort
		}
		m.opCtr++
		if m.opCtr > MaxOps {
			return ErrTooLong
		}
		insn := m.prog[pc]
		op := decodeOp(insn)
		if !op.Valid() {
			return fmt.Errorf("%w: %v at %d", ErrMalformed, op, pc)
		}

		switch op {
		case OpMemory:
			base := int(decodeMemoryBase(insn))
			step := int(decodeMemoryStep(insn))
			carry := int(decodeMemoryCarry(insn))
			idx := (base + (m.loopCycle+carry)*step) & (MemoryWords - 1)
			m.out1(m.memory[idx])
			pc++

		case OpIn:
			idx := uint32(DecodeImm(insn)) % hashWords
			m.out1(binary.LittleEndian.Uint32(m.hashIn[idx*4:]))
			pc++

		case OpLoop:
			count := DecodeImm(insn)
			if count > 0 {
				m.frames = append(m.frames, frame{loopPC: pc, count: int(count)})
				m.loopCycle = 0
				m.enterScope()
				pc++
				continue
			}
			end, err := m.matchingEnd(pc)
			if err != nil {
				return err
			}
			done, err := m.loopFinished(end)
			if err != nil || done {
				return err
			}
			pc = end + 1

		case OpIfLikely, OpIfRandom:
			if imm := DecodeImm(insn); imm != 2 {
				return fmt.Errorf("%w: branch at %d has offset %d", ErrMalformed, pc, imm)
			}
			a, err := m.regA(insn)
			if err != nil {
				return err
			}
			taken := a&1 != 0
			if op == OpIfLikely {
				taken = a&7 != 0
			}
			m.frames = append(m.frames, frame{loopPC: -1})
			m.enterScope()
			if taken {
				pc += 2
			} else {
				pc++
			}

		case OpJmp:
			pc += int(decodeJmp(insn)) + 1

		case OpEnd:
			if err := m.exitScope(pc); err != nil {
				return err
			}
			f := &m.frames[len(m.frames)-1]
			if f.loopPC < 0 {
				m.frames = m.frames[:len(m.frames)-1]
				pc++
				continue
			}
			f.iter++
			if f.iter < f.count {
				m.loopCycle = f.iter
				m.enterScope()
				pc = f.loopPC + 1
				continue
			}
			m.frames = m.frames[:len(m.frames)-1]
			done, err := m.loopFinished(pc)
			if err != nil || done {
				return err
			}
			pc++

		default:
			if err := m.alu(insn, op); err != nil {
				return fmt.Errorf("%v at %d: %w", op, pc, err)
			}
			pc++
		}
	}
}

// loopFinished is called when a loop's END at pc has run for the last time.
// A loop closing on the final instruction ends the cycle, which is only
// valid when nothing is left on the stack.
func (m *machine) loopFinished(pc int) (bool, error) {
	if pc != len(m.prog)-1 {
		return false, nil
	}
	if len(m.stack) != 0 || len(m.scopes) != 0 || m.varCount != 0 {
		return false, fmt.Errorf("%w: %d values and %d scopes left at exit",
			ErrMalformed, len(m.stack), len(m.scopes))
	}
	return true, nil
}

// matchingEnd finds the END closing the LOOP at pc without executing anything.
// A branch owns two bodies and therefore two ENDs.
func (m *machine) matchingEnd(pc int) (int, error) {
	depth := 1
	for i := pc + 1; i < len(m.prog); i++ {
		switch decodeOp(m.prog[i]) {
		case OpLoop:
			depth++
		case OpIfLikely, OpIfRandom:
			depth += 2
		case OpEnd:
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, ErrTooShort
}

func (m *machine) enterScope() {
	m.stack = append(m.stack, sentinel)
	m.scopes = append(m.scopes, m.varCount)
	m.varCount = 0
}

// exitScope folds the values of the innermost scope into the output half of
// the state and discards them.
func (m *machine) exitScope(pc int) error {
	begin := len(m.stack) - m.varCount
	if begin <= 0 || len(m.scopes) == 0 {
		return fmt.Errorf("%w: END at %d without an open scope", ErrMalformed, pc)
	}
	for _, v := range m.stack[begin:] {
		word := m.hashOut[m.hashCtr*4:]
		binary.LittleEndian.PutUint32(word, binary.LittleEndian.Uint32(word)+v)
		m.hashCtr = (m.hashCtr + 1) % hashWords
	}
	m.stack = m.stack[:begin]
	if m.stack[begin-1] != sentinel {
		return fmt.Errorf("%w: corrupt stack at %d", ErrMalformed, pc)
	}
	m.stack = m.stack[:begin-1]
	m.varCount = m.scopes[len(m.scopes)-1]
	m.scopes = m.scopes[:len(m.scopes)-1]
	return nil
}

func (m *machine) out1(v uint32) {
	m.stack = append(m.stack, v)
	m.varCount++
}

func (m *machine) out2(v uint64) {
	m.stack = append(m.stack, uint32(v), uint32(v>>32))
	m.varCount += 2
}

func (m *machine) out4(lo, hi uint64) {
	m.stack = append(m.stack, uint32(lo), uint32(lo>>32), uint32(hi), uint32(hi>>32))
	m.varCount += 4
}

func (m *machine) reg(idx uint32) (uint32, error) {
	if int(idx) >= len(m.stack) {
		return 0, fmt.Errorf("%w: register %d out of %d", ErrMalformed, idx, len(m.stack))
	}
	return m.stack[idx], nil
}

func (m *machine) regA(insn uint32) (uint32, error) {
	return m.reg(decodeRegA(insn))
}

func (m *machine) regB(insn uint32) (uint32, error) {
	if decodeHasImm(insn) {
		return uint32(DecodeImm(insn)), nil
	}
	return m.reg(decodeRegB(insn))
}

func (m *machine) pair(idx uint32) (uint64, error) {
	if idx == 0 {
		return 0, fmt.Errorf("%w: register pair at 0", ErrMalformed)
	}
	lo, err := m.reg(idx - 1)
	if err != nil {
		return 0, err
	}
	hi, err := m.reg(idx)
	if err != nil {
		return 0, err
	}
	return uint64(lo) | uint64(hi)<<32, nil
}

func (m *machine) regA2(insn uint32) (uint64, error) {
	return m.pair(decodeRegA(insn))
}

func (m *machine) regB2(insn uint32) (uint64, error) {
	if decodeHasImm(insn) {
		return uint64(DecodeImm(insn)), nil
	}
	return m.pair(decodeRegB(insn))
}
