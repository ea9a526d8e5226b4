package core

import (
	"crypto/sha256"
	"encoding/binary"
)

// GenesisHashSeed is hashed to form prev_hash of the first outcome.
const GenesisHashSeed = "OptionLedger:genesis:v1"

// GenesisHash returns the prev_hash of sequence 1.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// ChainHash links one outcome to the previous one:
// SHA-256(prev || sequence as 8 little-endian bytes || digest).
func ChainHash(prev [32]byte, sequence int64, digest []byte) [32]byte {
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], uint64(sequence))

	h := sha256.New()
	h.Write(prev[:])
	h.Write(seq[:])
	h.Write(digest)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// hashChain tracks the tip. Rejected batches extend it too, so every core
// sequence has exactly one link.
type hashChain struct {
	tip [32]byte
}

func newHashChain() *hashChain {
	return &hashChain{tip: GenesisHash()}
}

func (c *hashChain) extend(sequence int64, digest []byte) (prev, next [32]byte) {
	prev = c.tip
	c.tip = ChainHash(prev, sequence, digest)
	return prev, c.tip
}
