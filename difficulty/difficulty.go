// Package difficulty implements compact target arithmetic for PacketCrypt
// blocks and announcements.
package difficulty

import (
	"math/big"
	"math/bits"
)

const (
	// MaxTarget is the loosest target a block or v2 announcement may use.
	MaxTarget = 0x207fffff
	// maxLegacyAnnTarget bounds announcement targets before protocol version 2.
	maxLegacyAnnTarget = 0x20ffffff
	// Unusable is returned for announcements which can not contribute work.
	Unusable = 0xffffffff
	// AnnWaitPeriod is the number of blocks an announcement must age before use.
	AnnWaitPeriod = 3
)

var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

// FromCompact decodes a Bitcoin style compact target.
func FromCompact(compact uint32) *big.Int {
	size := compact >> 24
	word := compact & 0x007fffff
	var bn *big.Int
	if size <= 3 {
		word >>= 8 * (3 - size)
		bn = new(big.Int).SetUint64(uint64(word))
	} else {
		bn = new(big.Int).SetUint64(uint64(word))
		bn.Lsh(bn, uint(8*(size-3)))
	}
	if compact&0x00800000 != 0 {
		bn.Neg(bn)
	}
	return bn
}

// ToCompact encodes n as a compact target, moving the mantissa down a byte
// when its top bit would be read back as the sign.
func ToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}
	abs := new(big.Int).Abs(n)
	size := uint32((abs.BitLen() + 7) / 8)
	var mantissa uint32
	if size <= 3 {
		mantissa = uint32(abs.Uint64()) << (8 * (3 - size))
	} else {
		mantissa = uint32(abs.Rsh(abs, uint(8*(size-3))).Uint64())
	}
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		size++
	}
	compact := size<<24 | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// WorkForTarget returns 2^256 / (target+1), the expected number of hashes
// needed to meet target. It returns nil for target -1.
func WorkForTarget(target *big.Int) *big.Int {
	d := new(big.Int).Add(target, big.NewInt(1))
	if d.Sign() == 0 {
		return nil
	}
	return d.Quo(two256, d)
}

// TargetForWork is the inverse of WorkForTarget. Zero work maps to the
// maximum target.
func TargetForWork(work *big.Int) *big.Int {
	if work.Sign() == 0 {
		return new(big.Int).Set(two256)
	}
	t := new(big.Int).Sub(two256, work)
	return t.Quo(t, work)
}

func effectiveWork(blockWork, annWork *big.Int, annCount uint64, version uint32) *big.Int {
	if annWork.Sign() == 0 || annCount == 0 {
		return new(big.Int).Set(two256)
	}
	out := new(big.Int).Mul(blockWork, blockWork)
	out.Mul(out, blockWork)
	if version >= 2 {
		out.Rsh(out, 10)
	}
	out.Quo(out, annWork)

	count := new(big.Int).SetUint64(annCount)
	if version >= 2 {
		count.Mul(count, count)
	}
	return out.Quo(out, count)
}

// EffectiveBlockTarget combines the block target with the least announcement
// target and the number of announcements mined. More announcement work makes
// the block target easier, up to MaxTarget.
func EffectiveBlockTarget(blockTarget, annTarget uint32, annCount uint64, version uint32) uint32 {
	blockWork := WorkForTarget(FromCompact(blockTarget))
	annWork := WorkForTarget(FromCompact(annTarget))
	if blockWork == nil || annWork == nil {
		return 0
	}
	tgt := ToCompact(TargetForWork(effectiveWork(blockWork, annWork, annCount, version)))
	if tgt > MaxTarget {
		return MaxTarget
	}
	return tgt
}

// DegradeAnnTarget returns the target an announcement mined at annTarget is
// worth once it is ageBlocks old. Announcements younger than AnnWaitPeriod
// are Unusable.
func DegradeAnnTarget(annTarget, ageBlocks, version uint32) uint32 {
	if ageBlocks < AnnWaitPeriod {
		return Unusable
	}
	if version >= 2 {
		if ageBlocks == AnnWaitPeriod {
			return annTarget
		}
		tar := FromCompact(annTarget)
		tar.Lsh(tar, uint(ageBlocks-AnnWaitPeriod))
		if tar.BitLen() > 255 {
			return Unusable
		}
		return ToCompact(tar)
	}

	tar := FromCompact(annTarget)
	if ageBlocks == AnnWaitPeriod {
		return ToCompact(tar)
	}
	work := WorkForTarget(tar)
	if work == nil {
		return Unusable
	}
	work.Quo(work, big.NewInt(int64(ageBlocks-AnnWaitPeriod)))
	ret := ToCompact(TargetForWork(work))
	if ret > MaxTarget {
		return Unusable
	}
	return ret
}

// IsMinAnnDiffOk rejects announcement targets so far out of range that the
// effective target arithmetic would misbehave.
func IsMinAnnDiffOk(target, version uint32) bool {
	limit := uint32(maxLegacyAnnTarget)
	if version >= 2 {
		limit = MaxTarget
	}
	if target == 0 || target > limit {
		return false
	}
	tar := FromCompact(target)
	if version >= 2 && tar.Sign() <= 0 {
		return false
	}
	work := WorkForTarget(tar)
	return work != nil && work.Sign() > 0 && work.Cmp(two256) < 0
}

// CheckHash reports whether the little endian 32 byte hash meets target.
func CheckHash(hash []byte, target uint32) bool {
	if len(hash) != 32 || target > MaxTarget {
		return false
	}
	zeroBytes := int(target >> 24)
	mantissa := target & 0x00ffffff
	if mantissa > 0x7fffff || zeroBytes < 3 {
		return false
	}
	for x := 0; x < 32-zeroBytes; x++ {
		if hash[31-x] != 0 {
			return false
		}
	}
	sig := uint32(hash[zeroBytes-1])<<16 | uint32(hash[zeroBytes-2])<<8 | uint32(hash[zeroBytes-3])
	return sig < mantissa
}

// MaxSoftNonce returns the largest soft nonce a version 1 announcement mined
// at target may carry. Harder targets allow more nonce space.
func MaxSoftNonce(target uint32) uint32 {
	log2 := bits.Len32(target&0x007fffff) - 1
	n := (22 - log2) + (0x20-int(target>>24))*8 + 10
	if n >= 24 {
		return 0x00ffffff
	}
	shift := 24 - n
	if shift >= 32 {
		return 0
	}
	return 0x00ffffff >> shift
}
