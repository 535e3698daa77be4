package verifier

import (
	"fmt"
	"io"

	xdr "github.com/nullstyle/go-xdr/xdr3"
)

// EncodeBlock writes b in XDR, the format block files are kept in.
func EncodeBlock(w io.Writer, b *Block) error {
	if _, err := xdr.Marshal(w, b); err != nil {
		return fmt.Errorf("serialization failure: %w", err)
	}
	return nil
}

// DecodeBlock reads a block written by EncodeBlock and checks its buffer
// sizes.
func DecodeBlock(r io.Reader) (*Block, error) {
	b := &Block{}
	if _, err := xdr.Unmarshal(r, b); err != nil {
		return nil, fmt.Errorf("failed to deserialize block: %w", err)
	}
	if err := b.checkLengths(); err != nil {
		return nil, err
	}
	return b, nil
}
