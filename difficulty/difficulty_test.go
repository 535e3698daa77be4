package difficulty

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompactRoundTrip(t *testing.T) {
	t.Parallel()
	for _, compact := range []uint32{0x1d00ffff, 0x1b0404cb, 0x207fffff, 0x04923456, 0x05009234, 0x03123456} {
		require.Equal(t, compact, ToCompact(FromCompact(compact)), "%#x", compact)
	}
}

func TestCompactRenormalizesSignBit(t *testing.T) {
	t.Parallel()
	r := require.New(t)
	r.Equal(uint32(0x02008000), ToCompact(big.NewInt(0x80)))
	r.Equal(int64(0x80), FromCompact(0x02008000).Int64())

	r.Equal(int64(-0x12345600), FromCompact(0x04923456).Int64())
	r.Equal(uint32(0), ToCompact(new(big.Int)))
	r.Equal(int64(0), FromCompact(0x01003456).Int64())
}

func TestWorkTargetDuality(t *testing.T) {
	t.Parallel()
	for _, compact := range []uint32{0x1d00ffff, 0x1b0404cb, 0x1c0fffff} {
		tar := FromCompact(compact)
		back := TargetForWork(WorkForTarget(tar))
		require.True(t, back.Cmp(tar) >= 0)
		require.Equal(t, compact, ToCompact(back), "%#x", compact)
	}
	require.Equal(t, 0, TargetForWork(new(big.Int)).Cmp(two256))
	require.Nil(t, WorkForTarget(big.NewInt(-1)))
}

func TestEffectiveBlockTarget(t *testing.T) {
	t.Parallel()
	r := require.New(t)
	r.Equal(uint32(0), EffectiveBlockTarget(0x1d00ffff, 0x207fffff, 0, 1))
	r.Equal(uint32(MaxTarget), EffectiveBlockTarget(MaxTarget, MaxTarget, 1<<20, 2))

	few := FromCompact(EffectiveBlockTarget(0x1c0fffff, 0x1e0fffff, 100, 1))
	many := FromCompact(EffectiveBlockTarget(0x1c0fffff, 0x1e0fffff, 1000, 1))
	r.Positive(few.Sign())
	r.Equal(1, many.Cmp(few), "more announcements make the block easier")

	// Version 2 scales by the square of the count and divides work by 1024.
	v2 := FromCompact(EffectiveBlockTarget(0x1c0fffff, 0x1e0fffff, 100, 2))
	r.Equal(1, v2.Cmp(few))
}

func TestDegradeAnnTarget(t *testing.T) {
	t.Parallel()
	for _, version := range []uint32{1, 2} {
		for age := uint32(0); age < AnnWaitPeriod; age++ {
			require.Equal(t, uint32(Unusable), DegradeAnnTarget(0x1d00ffff, age, version))
		}
		require.Equal(t, uint32(0x1d00ffff), DegradeAnnTarget(0x1d00ffff, AnnWaitPeriod, version))
	}

	r := require.New(t)
	r.Equal(uint32(0x1d01fffe), DegradeAnnTarget(0x1d00ffff, AnnWaitPeriod+1, 2))
	r.Equal(uint32(Unusable), DegradeAnnTarget(MaxTarget, AnnWaitPeriod+1, 2))

	r.Equal(uint32(0x1d01fffe), DegradeAnnTarget(0x1d00ffff, AnnWaitPeriod+2, 1))
	r.Equal(uint32(Unusable), DegradeAnnTarget(MaxTarget, AnnWaitPeriod+7, 1))
}

func TestIsMinAnnDiffOk(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		target  uint32
		version uint32
		ok      bool
	}{
		{0, 2, false},
		{MaxTarget, 2, true},
		{0x20800000, 2, false},
		{0x01003456, 2, false},
		{0x2000ffff, 1, true},
		{0x20ffffff, 1, false},
		{0x21000001, 1, false},
		{0x01003456, 1, false},
	} {
		require.Equal(t, tc.ok, IsMinAnnDiffOk(tc.target, tc.version), "%#x v%d", tc.target, tc.version)
	}
}

func TestCheckHash(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	h := make([]byte, 32)
	h[31], h[30], h[29] = 0x7f, 0xff, 0xfe
	r.True(CheckHash(h, MaxTarget))
	h[29] = 0xff
	r.False(CheckHash(h, MaxTarget), "equal to the mantissa is not below it")

	h = make([]byte, 32)
	h[28] = 0xff
	r.False(CheckHash(h, 0x1d00ffff))
	h[28] = 0
	h[27] = 0xff
	r.True(CheckHash(h, 0x1d00ffff))
	h[29] = 1
	r.False(CheckHash(h, 0x1d00ffff))

	zero := make([]byte, 32)
	r.False(CheckHash(zero, 0x20800000))
	r.False(CheckHash(zero, 0x1d800000))
	r.False(CheckHash(zero, 0x0200ffff))
	r.False(CheckHash(zero[:31], MaxTarget))
}

func TestMaxSoftNonce(t *testing.T) {
	t.Parallel()
	r := require.New(t)
	r.Equal(uint32(0x3ff), MaxSoftNonce(MaxTarget))
	r.Equal(uint32(0x3ffff), MaxSoftNonce(0x1f7fffff))
	r.Equal(uint32(0xffffff), MaxSoftNonce(0x1d00ffff))
}
