// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode encodes with Core Deterministic Encoding (RFC 8949 §4.2):
// the same entry always produces identical bytes, which keeps the hash
// chain stable across re-encoding by convert and import.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Unknown fields are ignored so that
// older readers can skip fields added to an entry later.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Types with a text form (netip addresses and prefixes) round-trip
	// through their marshaler methods rather than as opaque structs.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	// Snapshot times keep nanosecond precision.
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("journal: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("journal: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

func newEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

func newDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodeEntry returns the canonical CBOR encoding of an entry's fields.
func EncodeEntry(entry Entry) ([]byte, error) {
	data, err := marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding %s entry: %w", entry.Kind(), err)
	}
	return data, nil
}

// DecodeEntry decodes the payload of a record of the given kind.
func DecodeEntry(kind EntryKind, payload []byte) (Entry, error) {
	info, ok := kindInfo[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint16(kind))
	}
	entry := info.make()
	if err := unmarshal(payload, entry); err != nil {
		return nil, fmt.Errorf("decoding %s entry: %w", kind, err)
	}
	return entry, nil
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) of an
// entry's encoding. Used by inspection tooling.
func Diagnose(entry Entry) (string, error) {
	data, err := EncodeEntry(entry)
	if err != nil {
		return "", err
	}
	return cbor.Diagnose(data)
}
