package verifier

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockFile(t *testing.T) {
	t.Parallel()
	tb := mineBlock(t, 1)

	var buf bytes.Buffer
	require.NoError(t, EncodeBlock(&buf, tb.valid))
	b, err := DecodeBlock(&buf)
	require.NoError(t, err)
	require.Equal(t, ResultOK, validate(t, b))
	require.Equal(t, tb.valid.AnnProof, b.AnnProof)
}

func TestDecodeBlockRejectsBadSizes(t *testing.T) {
	t.Parallel()
	b := clone(mineBlock(t, 2).valid)
	b.Header = b.Header[:40]

	var buf bytes.Buffer
	require.NoError(t, EncodeBlock(&buf, b))
	_, err := DecodeBlock(&buf)
	require.ErrorIs(t, err, ErrBadLength)

	_, err = DecodeBlock(bytes.NewReader([]byte{0, 0}))
	require.Error(t, err)
}
