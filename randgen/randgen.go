// Package randgen derives RandHash programs from a 32 byte seed.
//
// Generation is fully deterministic: the same seed always yields the same
// program, and every verifier must produce exactly the instructions a miner
// produced.
package randgen

import (
	"encoding/binary"
	"errors"

	"github.com/spacemeshos/packetcrypt/hash"
	"github.com/spacemeshos/packetcrypt/randhash"
)

const (
	initialBudget = 20000
	// MaxInsns is the longest program the generator may emit.
	MaxInsns = 2048

	loopMinCycles          = 2
	memoryCost             = 20
	inputCost              = 2
	branchCost             = 50
	randomBranchLikelihood = 2
	immediateLikelihood    = 4
	varReuseLikelihood     = 8
	higherScopeLikelihood  = 4

	varScope = ^uint32(0)
)

// ErrTooBig is returned when a seed produces a program over MaxInsns.
var ErrTooBig = errors.New("generated program is too big")

type opType int

const (
	op1to1 opType = iota
	op2to1
	op2to2
	op4to2
	op4to4
)

var costByType = [...]uint32{1, 2, 4, 8, 16}

var codesByType = [...][]randhash.OpCode{
	op1to1: {
		randhash.OpPopcnt8, randhash.OpPopcnt16, randhash.OpPopcnt32,
		randhash.OpClz8, randhash.OpClz16, randhash.OpClz32,
		randhash.OpCtz8, randhash.OpCtz16, randhash.OpCtz32,
		randhash.OpBswap16, randhash.OpBswap32,
	},
	op2to1: {
		randhash.OpAdd8, randhash.OpAdd16, randhash.OpAdd32,
		randhash.OpSub8, randhash.OpSub16, randhash.OpSub32,
		randhash.OpShll8, randhash.OpShll16, randhash.OpShll32,
		randhash.OpShrl8, randhash.OpShrl16, randhash.OpShrl32,
		randhash.OpShra8, randhash.OpShra16, randhash.OpShra32,
		randhash.OpRotl8, randhash.OpRotl16, randhash.OpRotl32,
		randhash.OpMul8, randhash.OpMul16, randhash.OpMul32,
		randhash.OpAnd, randhash.OpOr, randhash.OpXor,
	},
	op2to2: {
		randhash.OpAdd8C, randhash.OpAdd16C, randhash.OpAdd32C,
		randhash.OpSub8C, randhash.OpSub16C, randhash.OpSub32C,
		randhash.OpMul8C, randhash.OpMul16C, randhash.OpMul32C,
		randhash.OpMulsu8C, randhash.OpMulsu16C, randhash.OpMulsu32C,
		randhash.OpMulu8C, randhash.OpMulu16C, randhash.OpMulu32C,
	},
	op4to2: {
		randhash.OpAdd64, randhash.OpSub64, randhash.OpShll64, randhash.OpShrl64,
		randhash.OpShra64, randhash.OpRotl64, randhash.OpRotr64, randhash.OpMul64,
	},
	op4to4: {
		randhash.OpAdd64C, randhash.OpSub64C, randhash.OpMul64C, randhash.OpMulsu64C, randhash.OpMulu64C,
	},
}

type generator struct {
	seed    []byte
	randBuf [64]byte
	nextInt uint32
	ctr     uint32

	insns []uint32

	// vars holds one entry per live variable, with varScope marking the
	// start of each scope. Bit 0 is set once the variable has been read.
	vars  []uint32
	scope uint32

	tooBig bool
}

// Generate returns the program for seed.
func Generate(seed []byte) ([]uint32, error) {
	g := &generator{
		seed:    seed,
		nextInt: ^uint32(0),
		insns:   make([]uint32, 0, MaxInsns),
	}
	budget := uint32(initialBudget)
	g.loop(&budget)
	if g.tooBig {
		return nil, ErrTooBig
	}
	return g.insns, nil
}

func (g *generator) randu32() uint32 {
	if g.nextInt >= uint32(len(g.randBuf)/4) {
		hash.Expand(g.randBuf[:], g.seed, g.ctr)
		g.ctr++
		g.nextInt = 0
	}
	v := binary.LittleEndian.Uint32(g.randBuf[4*g.nextInt:])
	g.nextInt++
	return v
}

func (g *generator) randRange(start, end uint32) uint32 {
	if end <= start {
		return start
	}
	return g.randu32()%(end-start) + start
}

func (g *generator) cointoss(oneIn uint32) bool {
	return g.randu32()%oneIn == 0
}

func spend(budget *uint32, amount uint32) bool {
	if *budget < amount {
		return false
	}
	*budget -= amount
	return true
}

func (g *generator) emit(insn uint32) {
	if len(g.insns) >= MaxInsns {
		g.tooBig = true
		return
	}
	g.insns = append(g.insns, insn)
}

func (g *generator) enterScope() {
	g.scope++
	g.vars = append(g.vars, varScope)
}

func (g *generator) end() {
	g.emit(uint32(randhash.OpEnd))
	g.scope--
	for len(g.vars) > 0 {
		v := g.vars[len(g.vars)-1]
		g.vars = g.vars[:len(g.vars)-1]
		if v == varScope {
			break
		}
	}
}

func (g *generator) mkVar() {
	g.vars = append(g.vars, 0)
}

func (g *generator) loop(budget *uint32) bool {
	loopLen := g.randRange(loopMinCycles, 7+g.scope*29)
	numMemAcc := g.randRange(2, 4)

	if *budget < memoryCost*loopLen {
		return false
	}
	*budget /= loopLen
	g.emit(loopLen<<20 | uint32(randhash.OpLoop))
	g.enterScope()

	memTemplate := g.randu32()<<8 | uint32(randhash.OpMemory)
	for i := uint32(0); i < numMemAcc; i++ {
		if !spend(budget, memoryCost) {
			break
		}
		g.mkVar()
		g.emit(memTemplate&^(15<<9) | (g.randu32()&15)<<9)
	}
	ret := g.body(budget, false)
	g.end()
	return ret
}

// body always reports false so that an enclosing loop stops growing once a
// nested body has run out of budget or instruction space.
func (g *generator) body(budget *uint32, createScope bool) bool {
	if createScope {
		g.enterScope()
	}
	for len(g.insns) <= MaxInsns && g.fill(budget) {
		if g.shouldBranch() && !g.branch(budget) {
			break
		}
		if g.shouldLoop() && !g.loop(budget) {
			break
		}
	}
	if createScope {
		g.end()
	}
	return false
}

// fill emits a random run of arithmetic and input instructions. It returns
// false when the budget could not cover even the cheapest operation.
func (g *generator) fill(budget *uint32) bool {
	n := g.randRange(2, 12)
	for i := uint32(1); i <= n; i++ {
		switch {
		case g.cointoss(4*n/i) && g.op(op4to4, budget):
		case g.cointoss(3*n/i) && g.op(op4to2, budget):
		case g.cointoss(3*n/i) && g.op(op2to2, budget):
		case g.cointoss(2*n/i) && g.op(op2to1, budget):
		case g.cointoss(i) && g.input(budget):
		case g.op(op1to1, budget):
		default:
			return false
		}
	}
	return true
}

func (g *generator) shouldBranch() bool {
	return g.randu32()%64+uint32(len(g.insns)*25/MaxInsns) < 50
}

func (g *generator) shouldLoop() bool {
	return g.randu32()%32 < 23
}

func (g *generator) op(t opType, budget *uint32) bool {
	rand := g.randu32()
	if !spend(budget, costByType[t]) {
		return false
	}
	codes := codesByType[t]
	insn := uint32(codes[rand%uint32(len(codes))])
	dbl := t == op4to2 || t == op4to4
	insn |= g.getA(dbl)
	if t != op1to1 {
		insn |= g.getB(dbl)
	}
	g.emit(insn)

	outputs := 1
	switch t {
	case op2to2, op4to2:
		outputs = 2
	case op4to4:
		outputs = 4
	}
	for i := 0; i < outputs; i++ {
		g.mkVar()
	}
	return true
}

func (g *generator) input(budget *uint32) bool {
	if !spend(budget, inputCost) {
		return false
	}
	g.mkVar()
	g.emit(g.randu32()<<8 | uint32(randhash.OpIn))
	return true
}

func (g *generator) branch(budget *uint32) bool {
	if !spend(budget, branchCost) {
		return false
	}
	op := randhash.OpIfLikely
	if g.cointoss(randomBranchLikelihood) {
		op = randhash.OpIfRandom
	}
	g.emit(g.getA(false) | uint32(op) | 2<<20)

	j1 := len(g.insns)
	g.emit(uint32(randhash.OpJmp))
	b1 := *budget * 7 / 32
	g.body(&b1, true)

	j2 := len(g.insns)
	g.emit(uint32(randhash.OpJmp))
	b2 := *budget * 7 / 32
	g.body(&b2, true)

	if g.tooBig {
		return true
	}
	g.insns[j1] = uint32(j2-j1)<<8 | uint32(randhash.OpJmp)
	g.insns[j2] = uint32(len(g.insns)-j2-1)<<8 | uint32(randhash.OpJmp)
	return true
}

// pickVar chooses a variable to read, usually from the innermost scope that
// has enough of them. A double word read returns the index of the high half.
func (g *generator) pickVar(dbl bool) int {
	eof := len(g.vars)
	bof := eof - 1
	for ; bof >= 0; bof-- {
		if g.vars[bof] != varScope {
			continue
		}
		need := 1
		if dbl {
			need = 2
		}
		if bof < eof-need {
			if bof == 0 || !g.cointoss(higherScopeLikelihood) {
				break
			}
		}
		eof = bof
	}
	start := int(g.randRange(uint32(bof+1), uint32(eof)))
	for j := start + 1; ; j++ {
		if j >= eof {
			j = bof + 1
		}
		if (!dbl || j > bof+1) && g.cointoss(varReuseLikelihood) {
			return j
		}
		if g.vars[j]&1 == 0 && (!dbl || g.vars[j-1]&1 == 0) {
			return j
		}
	}
}

func (g *generator) getVar(dbl bool) uint32 {
	out := g.pickVar(dbl)
	g.vars[out] |= 1
	if dbl {
		g.vars[out-1] |= 1
	}
	return uint32(out)
}

func (g *generator) getA(dbl bool) uint32 {
	return g.getVar(dbl) << 9
}

func (g *generator) getB(dbl bool) uint32 {
	if g.cointoss(immediateLikelihood) {
		return g.randu32()<<20 | 1<<18
	}
	return g.getVar(dbl) << 20
}
