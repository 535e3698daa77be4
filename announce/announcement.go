// Package announce verifies PacketCrypt announcements: 1024 byte proofs that
// a miner built an 8192 item table bound to a recent parent block and found
// a soft nonce whose CryptoCycle hash meets the announcement target.
//
// Announcement layout:
//
//	[0]         version
//	[1:4]       soft nonce, 24 bits little endian
//	[4:8]       reserved
//	[8:12]      work bits (compact target)
//	[12:16]     parent block height
//	[16:20]     reserved
//	[20:24]     content length
//	[24:56]     content hash
//	[56:88]     ed25519 signing key, all zero when unsigned
//	[88:920]    merkle branch, 13 sibling hashes of 64 bytes
//	[920:984]   merkle root
//	[984:1024]  first 40 bytes of the proven item (zero for version 1)
package announce

import (
	"encoding/binary"
	"fmt"
)

const (
	// Size is the size of an announcement in bytes.
	Size = 1024
	// MerkleDepth is the depth of the item table merkle tree.
	MerkleDepth = 13
	// TableSize is the number of items a miner commits to.
	TableSize = 1 << MerkleDepth
	// ItemSize is the size of one table item.
	ItemSize = 1024
	// ParentHashSize is the size of the parent block hash an announcement is bound to.
	ParentHashSize = 32

	headerSize    = 88
	branchOffset  = headerSize
	rootOffset    = branchOffset + 64*MerkleDepth
	item4Offset   = rootOffset + 64
	item4Size     = Size - item4Offset
	hashInputSize = headerSize + 64

	// Version 1 announcements are only accepted for parents at or above this height.
	v1MinParentHeight = 103869
)

// Announcement is a read-only view over 1024 announcement bytes.
type Announcement []byte

func (a Announcement) Version() uint8 { return a[0] }

// SoftNonce is the 24 bit nonce a miner varies without rebuilding the table.
func (a Announcement) SoftNonce() uint32 {
	return uint32(a[3])<<16 | uint32(a[2])<<8 | uint32(a[1])
}

func (a Announcement) WorkBits() uint32      { return binary.LittleEndian.Uint32(a[8:12]) }
func (a Announcement) ParentHeight() uint32  { return binary.LittleEndian.Uint32(a[12:16]) }
func (a Announcement) ContentLength() uint32 { return binary.LittleEndian.Uint32(a[20:24]) }
func (a Announcement) ContentHash() []byte   { return a[24:56] }
func (a Announcement) SigningKey() []byte    { return a[56:88] }
func (a Announcement) MerkleRoot() []byte    { return a[rootOffset:item4Offset] }

// HasSigningKey reports whether any byte of the signing key is set.
func (a Announcement) HasSigningKey() bool {
	for _, b := range a.SigningKey() {
		if b != 0 {
			return true
		}
	}
	return false
}

// Result is the outcome of validating an announcement.
type Result int

const (
	ResultOK Result = iota
	ResultInvalid
	ResultInvalidItem4
	ResultInsufficientPow
	ResultSoftNonceHigh
	ResultVersionNotAllowed
	ResultVersionMismatch
)

var resultNames = [...]string{
	ResultOK:                "OK",
	ResultInvalid:           "INVAL",
	ResultInvalidItem4:      "INVAL_ITEM4",
	ResultInsufficientPow:   "INSUF_POW",
	ResultSoftNonceHigh:     "SOFT_NONCE_HIGH",
	ResultVersionNotAllowed: "ANN_VERSION_NOT_ALLOWED",
	ResultVersionMismatch:   "ANN_VERSION_MISMATCH",
}

func (r Result) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("Result(%d)", int(r))
}
