package store_test

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/packetcrypt/store"
	"github.com/spacemeshos/packetcrypt/verifier"
)

var _ verifier.BlockHashes = (*store.Store)(nil)

func headers(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = make([]byte, store.HeaderSize)
		out[i][0] = byte(i)
		out[i][79] = 0xee
	}
	return out
}

func TestHeaderHash(t *testing.T) {
	t.Parallel()
	header := headers(1)[0]
	first := sha256.Sum256(header)
	want := sha256.Sum256(first[:])
	require.Equal(t, want, store.HeaderHash(header))
}

func TestPutAndGet(t *testing.T) {
	t.Parallel()
	r := require.New(t)
	ctx := context.Background()
	s, err := store.Open(t.TempDir())
	r.NoError(err)
	t.Cleanup(func() { r.NoError(s.Close()) })

	_, err = s.Tip()
	r.ErrorIs(err, store.ErrNotFound)

	hdrs := headers(5)
	r.NoError(s.PutHeaders(ctx, 300, hdrs))

	for i, h := range hdrs {
		got, err := s.Header(ctx, uint32(300+i))
		r.NoError(err)
		r.Equal(h, got)

		hash, err := s.BlockHash(ctx, uint32(300+i))
		r.NoError(err)
		want := store.HeaderHash(h)
		r.Equal(want[:], hash)
	}

	tip, err := s.Tip()
	r.NoError(err)
	r.Equal(uint32(304), tip)

	_, err = s.BlockHash(ctx, 299)
	r.ErrorIs(err, store.ErrNotFound)
}

func TestTipOrdersNumerically(t *testing.T) {
	t.Parallel()
	r := require.New(t)
	ctx := context.Background()
	s, err := store.OpenInMemory()
	r.NoError(err)
	defer s.Close()

	r.NoError(s.PutHeaders(ctx, 0x1ff, headers(1)))
	r.NoError(s.PutHeaders(ctx, 0x0ff, headers(1)))
	r.NoError(s.PutHeaders(ctx, 0x100, headers(1)))
	tip, err := s.Tip()
	r.NoError(err)
	r.Equal(uint32(0x1ff), tip)
}

func TestPutRejectsBadHeader(t *testing.T) {
	t.Parallel()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	hdrs := headers(3)
	hdrs[1] = hdrs[1][:79]
	err = s.PutHeaders(context.Background(), 10, hdrs)
	require.ErrorIs(t, err, store.ErrBadHeader)

	_, err = s.Header(context.Background(), 10)
	require.ErrorIs(t, err, store.ErrNotFound)
}
