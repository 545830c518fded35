// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"bytes"
	"fmt"
	"time"
)

// Record is one entry as held by a store.
type Record struct {
	// Seq is assigned by the store at append time. Sequence numbers
	// start at 1 and increase by exactly one per record.
	Seq uint64

	// Instance identifies the instance whose call produced the entry.
	// Several instances may share one store; replay routes records by
	// this field.
	Instance string

	// Time is when the store appended the record.
	Time time.Time

	Entry Entry
}

// wireRecord is the persisted form of a Record, shared by the file and
// SQLite backends.
type wireRecord struct {
	Seq         uint64      `cbor:"seq"`
	Instance    string      `cbor:"instance"`
	Time        int64       `cbor:"time"`
	Kind        EntryKind   `cbor:"kind"`
	Compression Compression `cbor:"compression"`
	Size        int         `cbor:"size"`
	Payload     []byte      `cbor:"payload"`
	Hash        []byte      `cbor:"hash"`
}

// sealRecord encodes record for storage and computes its chain hash.
func sealRecord(previous Hash, record Record, compression Compression) (wireRecord, Hash, error) {
	payload, err := EncodeEntry(record.Entry)
	if err != nil {
		return wireRecord{}, Hash{}, err
	}
	if len(payload) > MaxEntrySize {
		return wireRecord{}, Hash{}, fmt.Errorf("record %d: %s entry is %d bytes, limit is %d", record.Seq, record.Entry.Kind(), len(payload), MaxEntrySize)
	}
	timeNanos := record.Time.UnixNano()
	hash := chainHash(previous, record.Seq, timeNanos, record.Instance, record.Entry.Kind(), payload)

	stored, used, err := compressPayload(payload, compression)
	if err != nil {
		return wireRecord{}, Hash{}, fmt.Errorf("compressing record %d: %w", record.Seq, err)
	}

	return wireRecord{
		Seq:         record.Seq,
		Instance:    record.Instance,
		Time:        timeNanos,
		Kind:        record.Entry.Kind(),
		Compression: used,
		Size:        len(payload),
		Payload:     stored,
		Hash:        hash[:],
	}, hash, nil
}

// openRecord verifies wire against its predecessor's hash and decodes
// it.
func openRecord(previous Hash, wire wireRecord) (Record, Hash, error) {
	payload, err := decompressPayload(wire.Payload, wire.Compression, wire.Size)
	if err != nil {
		return Record{}, Hash{}, fmt.Errorf("%w: record %d: %v", ErrCorrupt, wire.Seq, err)
	}

	hash := chainHash(previous, wire.Seq, wire.Time, wire.Instance, wire.Kind, payload)
	if !bytes.Equal(hash[:], wire.Hash) {
		return Record{}, Hash{}, fmt.Errorf("%w: record %d: hash chain mismatch", ErrCorrupt, wire.Seq)
	}

	entry, err := DecodeEntry(wire.Kind, payload)
	if err != nil {
		return Record{}, Hash{}, fmt.Errorf("%w: record %d: %v", ErrCorrupt, wire.Seq, err)
	}

	return Record{
		Seq:      wire.Seq,
		Instance: wire.Instance,
		Time:     time.Unix(0, wire.Time).UTC(),
		Entry:    entry,
	}, hash, nil
}

// normalizeTime truncates t to what survives persistence, so records
// returned by Append compare equal to the same records read back.
func normalizeTime(t time.Time) time.Time {
	return time.Unix(0, t.UnixNano()).UTC()
}
