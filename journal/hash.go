// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Hash is a BLAKE3 digest linking a persisted record to its
// predecessor.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the all-zero anchor of a journal that has
// never been truncated.
func (h Hash) IsZero() bool { return h == Hash{} }

func hashFromBytes(data []byte) (Hash, bool) {
	var hash Hash
	if len(data) != len(hash) {
		return hash, false
	}
	copy(hash[:], data)
	return hash, true
}

// recordDomainKey keys the chain hash. The bytes are the ASCII domain
// name, zero-padded to the 32 bytes BLAKE3 keyed mode requires. It is a
// fixed constant: changing it invalidates every persisted journal.
var recordDomainKey = [32]byte{
	'w', 'a', 's', 'i', 'x', '.', 'j', 'o', 'u', 'r', 'n', 'a', 'l', '.',
	'r', 'e', 'c', 'o', 'r', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// chainHash computes the hash of one record from its predecessor's
// hash and every field that identifies the record. The payload is the
// uncompressed entry encoding, so recompressing a journal does not
// change its chain.
func chainHash(previous Hash, seq uint64, timeNanos int64, instance string, kind EntryKind, payload []byte) Hash {
	hasher, err := blake3.NewKeyed(recordDomainKey[:])
	if err != nil {
		panic("journal: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	var header [8 + 8 + 2 + 4]byte
	binary.BigEndian.PutUint64(header[0:8], seq)
	binary.BigEndian.PutUint64(header[8:16], uint64(timeNanos))
	binary.BigEndian.PutUint16(header[16:18], uint16(kind))
	binary.BigEndian.PutUint32(header[18:22], uint32(len(instance)))

	hasher.Write(previous[:])
	hasher.Write(header[:])
	hasher.Write([]byte(instance))
	hasher.Write(payload)

	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}
