// Package store keeps block headers by height so that announcements can be
// checked against the hash of the block they were mined on.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/minio/sha256-simd"
	xdr "github.com/nullstyle/go-xdr/xdr3"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"github.com/spacemeshos/packetcrypt/logging"
)

// HeaderSize is the size of a serialized block header.
const HeaderSize = 80

var (
	ErrNotFound  = leveldb.ErrNotFound
	ErrBadHeader = errors.New("block header must be 80 bytes")
)

var headerPrefix = []byte("h/")

type record struct {
	Header []byte
	Hash   []byte
}

// Store maps block heights to headers and their hashes.
type Store struct {
	db *leveldb.DB
}

func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database @ %s: %w", dir, err)
	}
	return &Store{db}, nil
}

// OpenInMemory opens a store which is dropped when closed.
func OpenInMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	return &Store{db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// HeaderHash returns the block hash of a header: the double sha256 of its
// serialization.
func HeaderHash(header []byte) [sha256.Size]byte {
	first := sha256.Sum256(header)
	return sha256.Sum256(first[:])
}

// Keys sort by height.
func key(height uint32) []byte {
	return binary.BigEndian.AppendUint32(append([]byte(nil), headerPrefix...), height)
}

func encode(header []byte) ([]byte, error) {
	if len(header) != HeaderSize {
		return nil, fmt.Errorf("%w: got %d", ErrBadHeader, len(header))
	}
	h := HeaderHash(header)
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, record{Header: header, Hash: h[:]}); err != nil {
		return nil, fmt.Errorf("serialization failure: %w", err)
	}
	return buf.Bytes(), nil
}

// PutHeaders stores consecutive headers starting at height first in one batch.
func (s *Store) PutHeaders(ctx context.Context, first uint32, headers [][]byte) error {
	batch := new(leveldb.Batch)
	for i, header := range headers {
		data, err := encode(header)
		if err != nil {
			return fmt.Errorf("header at height %d: %w", first+uint32(i), err)
		}
		batch.Put(key(first+uint32(i)), data)
	}
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("storing headers in DB: %w", err)
	}
	logging.FromContext(ctx).Debug("stored headers",
		zap.Uint32("first", first),
		zap.Int("count", len(headers)),
	)
	return nil
}

func (s *Store) get(height uint32) (*record, error) {
	data, err := s.db.Get(key(height), nil)
	if err != nil {
		return nil, fmt.Errorf("get header at %d from DB: %w", height, err)
	}
	rec := &record{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), rec); err != nil {
		return nil, fmt.Errorf("failed to deserialize header at %d: %w", height, err)
	}
	return rec, nil
}

// Header returns the header stored at height.
func (s *Store) Header(_ context.Context, height uint32) ([]byte, error) {
	rec, err := s.get(height)
	if err != nil {
		return nil, err
	}
	return rec.Header, nil
}

// BlockHash returns the hash of the block at height.
func (s *Store) BlockHash(_ context.Context, height uint32) ([]byte, error) {
	rec, err := s.get(height)
	if err != nil {
		return nil, err
	}
	return rec.Hash, nil
}

// Tip returns the greatest stored height. ErrNotFound is returned for an
// empty store.
func (s *Store) Tip() (uint32, error) {
	iter := s.db.NewIterator(util.BytesPrefix(headerPrefix), nil)
	defer iter.Release()
	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return 0, fmt.Errorf("iterating headers: %w", err)
		}
		return 0, ErrNotFound
	}
	return binary.BigEndian.Uint32(iter.Key()[len(headerPrefix):]), nil
}
