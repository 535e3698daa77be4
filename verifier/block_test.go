package verifier

import (
	"bytes"
	"encoding/binary"
	"errors"
	"slices"
	"testing"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/packetcrypt/announce"
	"github.com/spacemeshos/packetcrypt/difficulty"
	"github.com/spacemeshos/packetcrypt/pccompress"
)

const (
	testHeight   = 120000
	testAnnCount = 16
	signedAnn    = 2
	contentAnn   = 1
)

var testContent = bytes.Repeat([]byte("packetcrypt content "), 5)

func testAnn(i int, height uint32) []byte {
	ann := make([]byte, announce.Size)
	for j := range ann {
		ann[j] = byte(j*13 + i*101)
	}
	ann[0] = 1
	// Soft nonce out of range, so full validation fails fast.
	ann[1], ann[2], ann[3] = 0xff, 0xff, 0xff
	binary.LittleEndian.PutUint32(ann[8:], difficulty.MaxTarget)
	binary.LittleEndian.PutUint32(ann[12:], height-difficulty.AnnWaitPeriod)
	binary.LittleEndian.PutUint32(ann[20:], 0)
	clear(ann[56:88])
	return ann
}

// fillerHashes builds n announcement hashes such that, once sorted, hash
// anns[i] lands at rank ranks[i]. It fails when the ranks collide or
// disagree with the order of the given hashes.
func fillerHashes(n int, anns [NumAnns][32]byte, ranks [NumAnns]uint64) ([][32]byte, bool) {
	type fixed struct {
		hash [32]byte
		rank int
	}
	var known []fixed
	for i := range anns {
		f := fixed{anns[i], int(ranks[i])}
		if j := slices.IndexFunc(known, func(k fixed) bool { return k.rank == f.rank }); j >= 0 {
			if known[j].hash != f.hash {
				return nil, false
			}
			continue
		}
		if slices.ContainsFunc(known, func(k fixed) bool { return k.hash == f.hash }) {
			return nil, false
		}
		known = append(known, f)
	}
	slices.SortFunc(known, func(a, b fixed) int { return a.rank - b.rank })
	prefix := func(h [32]byte) uint64 { return binary.LittleEndian.Uint64(h[:8]) }
	for i := 1; i < len(known); i++ {
		if prefix(known[i-1].hash) >= prefix(known[i].hash) {
			return nil, false
		}
	}

	out := make([][32]byte, 0, n)
	lo, rank := uint64(0), 0
	fill := func(upto int, hi uint64) bool {
		gap := upto - rank
		step := (hi - lo) / uint64(gap+1)
		if gap > 0 && step == 0 {
			return false
		}
		for j := 1; j <= gap; j++ {
			var h [32]byte
			binary.LittleEndian.PutUint64(h[:8], lo+step*uint64(j))
			h[31] = 0xaa
			out = append(out, h)
		}
		rank = upto
		return true
	}
	for _, k := range known {
		if !fill(k.rank, prefix(k.hash)) {
			return nil, false
		}
		out = append(out, k.hash)
		rank, lo = k.rank+1, prefix(k.hash)
	}
	if !fill(n, ^uint64(0)) {
		return nil, false
	}
	return out, true
}

type testBlock struct {
	valid   *Block
	weakPow *Block
}

// mineBlock searches proof nonces for a block whose announcements sit at
// the positions the proof of work selects, once with a hash that meets the
// target and once with one that does not.
func mineBlock(t *testing.T, version uint32) *testBlock {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	header := make([]byte, HeaderSize)
	for i := range header {
		header[i] = byte(i)
	}
	binary.LittleEndian.PutUint32(header[nBitsOffset:], difficulty.MaxTarget)

	base := Block{
		Header:       header,
		Height:       testHeight,
		Version:      version,
		AnnLeastWork: difficulty.MaxTarget,
		AnnCount:     testAnnCount,
	}
	for i := range base.Anns {
		base.Anns[i] = testAnn(i, testHeight)
	}
	if version <= 1 {
		ann := base.Anns[contentAnn]
		binary.LittleEndian.PutUint32(ann[20:], uint32(len(testContent)))
		root := announce.ContentRoot(testContent)
		copy(ann[24:56], root[:])
	}
	signed := base.Anns[signedAnn]
	copy(signed[56:88], priv.Public().(ed25519.PublicKey))
	base.Sigs[signedAnn] = ed25519.Sign(priv, signed)

	var anns [NumAnns][32]byte
	for i, ann := range base.Anns {
		anns[i] = announce.Hash(ann)
	}

	out := &testBlock{}
	for nonce := uint32(0); nonce < 1<<14 && (out.valid == nil || out.weakPow == nil); nonce++ {
		b := base
		b.Nonce = nonce
		var blocks [NumAnns][]byte
		if version <= 1 {
			b.ContentProof = announce.ContentProof(testContent, ProofIndex(header, nonce))
			blocks[contentAnn] = b.ContentProof[:announce.ContentBlockSize]
		}
		pow, indexes := mix(&b, blocks)
		var ranks [NumAnns]uint64
		for i, idx := range indexes {
			ranks[i] = idx % testAnnCount
		}
		hashes, ok := fillerHashes(testAnnCount, anns, ranks)
		if !ok {
			continue
		}
		tree, err := pccompress.NewTree(hashes)
		require.NoError(t, err)
		for i := range anns {
			require.Equal(t, anns[i], tree.Hash(ranks[i]))
		}
		b.AnnProof, err = tree.Proof(indexes)
		require.NoError(t, err)
		root := tree.Root()
		b.AnnMerkleRoot = root[:]

		if difficulty.CheckHash(pow[:], difficulty.EffectiveBlockTarget(b.Target(), b.AnnLeastWork, b.AnnCount, version)) {
			if out.valid == nil {
				out.valid = &b
			}
		} else if out.weakPow == nil {
			out.weakPow = &b
		}
	}
	require.NotNil(t, out.valid)
	require.NotNil(t, out.weakPow)
	return out
}

func clone(b *Block) *Block {
	c := *b
	for i := range c.Anns {
		c.Anns[i] = slices.Clone(b.Anns[i])
		c.Sigs[i] = slices.Clone(b.Sigs[i])
	}
	c.Header = slices.Clone(b.Header)
	c.ContentProof = slices.Clone(b.ContentProof)
	c.AnnProof = slices.Clone(b.AnnProof)
	c.AnnMerkleRoot = slices.Clone(b.AnnMerkleRoot)
	return &c
}

func validate(t *testing.T, b *Block) Result {
	t.Helper()
	res, err := ValidateBlock(b, nil)
	require.NoError(t, err)
	return res
}

func TestResultString(t *testing.T) {
	t.Parallel()
	for res, want := range map[Result]string{
		ResultOK:                          "OK",
		ResultShareOK:                     "SHARE_OK",
		annResult(ResultAnnInvalid, 2):    "ANN_INVALID(2)",
		annResult(ResultAnnInsufPow, 3):   "ANN_INSUF_POW(3)",
		annResult(ResultAnnSigInvalid, 0): "ANN_SIG_INVALID(0)",
		ResultAnnContentInvalid | 1:       "ANN_CONTENT_INVALID(1)",
		ResultPcpInvalid:                  "PCP_INVAL",
		ResultPcpMismatch:                 "PCP_MISMATCH",
		ResultInsufficientPow:             "INSUF_POW",
		ResultBadCoinbase:                 "BAD_COINBASE",
		ResultPcpInvalid | 1:              "UNKNOWN_ERROR(1537)",
		Result(42 << 8):                   "UNKNOWN_ERROR(10752)",
	} {
		require.Equal(t, want, res.String())
	}
	require.Equal(t, ResultAnnInvalid, annResult(ResultAnnInvalid, 3).Code())
	require.Equal(t, 3, annResult(ResultAnnInvalid, 3).Index())
}

func TestValidateBlockV2(t *testing.T) {
	t.Parallel()
	tb := mineBlock(t, 2)

	require.Equal(t, ResultOK, validate(t, tb.valid))
	require.Equal(t, ResultInsufficientPow, validate(t, tb.weakPow))

	tests := []struct {
		name   string
		mutate func(b *Block)
		want   Result
	}{
		{"too low for version 2", func(b *Block) { b.Height = pcpV2MinHeight - 1 }, ResultPcpMismatch},
		{"bad signature", func(b *Block) { b.Sigs[signedAnn][3] ^= 1 }, annResult(ResultAnnSigInvalid, signedAnn)},
		{"missing signature", func(b *Block) { b.Sigs[signedAnn] = nil }, annResult(ResultAnnSigInvalid, signedAnn)},
		{"content proof in version 2", func(b *Block) { b.ContentProof = []byte{1} }, ResultPcpInvalid},
		{"bad coinbase", func(b *Block) { b.AnnLeastWork = 0 }, ResultBadCoinbase},
		{"parent above block", func(b *Block) {
			binary.LittleEndian.PutUint32(b.Anns[0][12:], testHeight+1)
		}, annResult(ResultAnnInvalid, 0)},
		{"announcement too young", func(b *Block) {
			binary.LittleEndian.PutUint32(b.Anns[3][12:], testHeight-1)
		}, annResult(ResultAnnInsufPow, 3)},
		{"least work above announcement", func(b *Block) { b.AnnLeastWork = 0x1f7fffff }, annResult(ResultAnnInsufPow, 0)},
		{"wrong merkle root", func(b *Block) { b.AnnMerkleRoot[7] ^= 1 }, ResultPcpMismatch},
		{"truncated announcement proof", func(b *Block) { b.AnnProof = b.AnnProof[:len(b.AnnProof)-1] }, ResultPcpInvalid},
		{"announcement proof with extra bytes", func(b *Block) { b.AnnProof = append(b.AnnProof, 0) }, ResultPcpInvalid},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b := clone(tb.valid)
			tc.mutate(b)
			require.Equal(t, tc.want, validate(t, b))
		})
	}
}

func TestValidateBlockV1Content(t *testing.T) {
	t.Parallel()
	tb := mineBlock(t, 1)

	require.Equal(t, ResultOK, validate(t, tb.valid))
	require.Equal(t, ResultInsufficientPow, validate(t, tb.weakPow))

	b := clone(tb.valid)
	b.Height = pcpV1MaxHeight + 1
	require.Equal(t, ResultPcpMismatch, validate(t, b))

	b = clone(tb.valid)
	b.ContentProof[len(b.ContentProof)-1] ^= 1
	require.Equal(t, annResult(ResultAnnContentInvalid, contentAnn), validate(t, b))

	b = clone(tb.valid)
	b.ContentProof = b.ContentProof[:len(b.ContentProof)-1]
	require.Equal(t, annResult(ResultAnnContentInvalid, contentAnn), validate(t, b))

	b = clone(tb.valid)
	b.ContentProof = append(b.ContentProof, 0)
	require.Equal(t, ResultPcpInvalid, validate(t, b))
}

func TestValidateBlockParentLookup(t *testing.T) {
	t.Parallel()
	tb := mineBlock(t, 2)

	var asked []uint32
	res, err := ValidateBlock(tb.valid, func(height uint32) ([]byte, bool) {
		asked = append(asked, height)
		return nil, false
	})
	require.NoError(t, err)
	require.Equal(t, annResult(ResultAnnInvalid, 0), res)
	require.Equal(t, []uint32{testHeight - difficulty.AnnWaitPeriod}, asked)

	res, err = ValidateBlock(tb.valid, func(uint32) ([]byte, bool) {
		return make([]byte, announce.ParentHashSize), true
	})
	require.NoError(t, err)
	require.Equal(t, annResult(ResultAnnInvalid, 0), res)
}

func TestValidateBlockBadLength(t *testing.T) {
	t.Parallel()
	b := &Block{Header: make([]byte, HeaderSize), AnnMerkleRoot: make([]byte, 32)}
	for i := range b.Anns {
		b.Anns[i] = make([]byte, announce.Size)
	}
	b.Anns[2] = b.Anns[2][:100]
	_, err := ValidateBlock(b, nil)
	require.ErrorIs(t, err, ErrBadLength)

	b.Anns[2] = make([]byte, announce.Size)
	b.Header = b.Header[:79]
	_, err = ValidateBlock(b, nil)
	require.ErrorIs(t, err, ErrBadLength)
}

func TestSplitContentProof(t *testing.T) {
	t.Parallel()
	r := require.New(t)
	var anns [NumAnns][]byte
	contents := [NumAnns][]byte{nil, testContent, []byte("short"), bytes.Repeat([]byte{9}, 300)}
	for i := range anns {
		anns[i] = testAnn(i, testHeight)
		binary.LittleEndian.PutUint32(anns[i][20:], uint32(len(contents[i])))
	}
	const idx = 12345
	var blob []byte
	for _, c := range contents {
		if len(c) > announce.ContentBlockSize {
			blob = append(blob, announce.ContentProof(c, idx)...)
		}
	}

	proofs, err := SplitContentProof(blob, idx, anns)
	r.NoError(err)
	r.Nil(proofs[0])
	r.Equal(announce.ContentProof(testContent, idx), proofs[1])
	r.Nil(proofs[2])
	r.Equal(announce.ContentProof(contents[3], idx), proofs[3])

	_, err = SplitContentProof(blob[:len(blob)-1], idx, anns)
	r.ErrorIs(err, ErrContentProofShort)
	_, err = SplitContentProof(append(slices.Clone(blob), 1), idx, anns)
	r.ErrorIs(err, ErrContentProofDangling)
	r.False(errors.Is(err, ErrContentProofShort))
}
