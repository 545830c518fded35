// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sys/unix"

	"github.com/hghpublic/wasmerio-wasmer/lib/atomicfile"
)

const (
	fileMagic = "wasix-journal"

	// fileFormatVersion is bumped when the header or record layout
	// changes incompatibly.
	fileFormatVersion = 1
)

// fileHeader is the first CBOR item of a journal file. BaseSeq is the
// sequence number of the first record in the file; Anchor is the chain
// hash of the record before it (zero for a journal that was never
// truncated).
type fileHeader struct {
	Magic   string `cbor:"magic"`
	Version uint16 `cbor:"version"`
	BaseSeq uint64 `cbor:"base_seq"`
	Anchor  []byte `cbor:"anchor"`
}

// fileIndexEntry locates one record in the file.
type fileIndexEntry struct {
	offset int64
	hash   Hash
}

// FileStore persists records as a CBOR sequence in a single file: a
// header followed by one wireRecord per entry. The file is locked with
// an exclusive flock for as long as the store is open.
type FileStore struct {
	path    string
	options Options
	logger  *slog.Logger

	mu       sync.Mutex
	file     *os.File
	size     int64
	base     uint64
	anchor   Hash
	index    []fileIndexEntry
	lastHash Hash
}

var (
	_ Store        = (*FileStore)(nil)
	_ RecordWriter = (*FileStore)(nil)
)

// OpenFile opens or creates a journal file. Opening verifies the whole
// hash chain. A record cut short by a crash at the end of the file is
// discarded; any other damage fails with ErrCorrupt.
func OpenFile(path string, options Options) (*FileStore, error) {
	options = options.withDefaults()

	file, err := openLocked(path)
	if err != nil {
		return nil, err
	}

	store := &FileStore{
		path:    path,
		options: options,
		logger:  options.Logger.With("journal", path),
		file:    file,
	}
	if err := store.load(); err != nil {
		file.Close()
		return nil, err
	}
	return store, nil
}

// openLocked opens path for reading and writing and takes an exclusive,
// non-blocking flock on it.
func openLocked(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("locking journal %s: %w", path, err)
	}
	return file, nil
}

// load reads the header and every record, rebuilding the in-memory
// index and recovering from a torn tail.
func (s *FileStore) load() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("inspecting journal %s: %w", s.path, err)
	}
	if info.Size() == 0 {
		return s.resetLocked(1)
	}

	decoder := newDecoder(io.NewSectionReader(s.file, 0, info.Size()))
	var header fileHeader
	if err := decoder.Decode(&header); err != nil {
		return fmt.Errorf("%w: %s: reading header: %v", ErrUnsupportedFormat, s.path, err)
	}
	if header.Magic != fileMagic {
		return fmt.Errorf("%w: %s: bad magic %q", ErrUnsupportedFormat, s.path, header.Magic)
	}
	if header.Version > fileFormatVersion {
		return fmt.Errorf("%w: %s: format version %d is newer than %d", ErrUnsupportedFormat, s.path, header.Version, fileFormatVersion)
	}
	anchor, ok := hashFromBytes(header.Anchor)
	if !ok {
		return fmt.Errorf("%w: %s: header anchor has %d bytes", ErrCorrupt, s.path, len(header.Anchor))
	}

	s.base = header.BaseSeq
	s.anchor = anchor
	s.lastHash = anchor
	s.index = nil

	offset := int64(decoder.NumBytesRead())
	for {
		var wire wireRecord
		err := decoder.Decode(&wire)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			s.logger.Warn("discarding torn record at end of journal",
				"offset", offset,
				"discarded_bytes", info.Size()-offset,
			)
			if err := s.file.Truncate(offset); err != nil {
				return fmt.Errorf("truncating torn tail of %s: %w", s.path, err)
			}
			if err := s.file.Sync(); err != nil {
				return fmt.Errorf("syncing %s after torn tail recovery: %w", s.path, err)
			}
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %s at offset %d: %v", ErrCorrupt, s.path, offset, err)
		}

		expected := s.base + uint64(len(s.index))
		if wire.Seq != expected {
			return fmt.Errorf("%w: %s: record %d where %d was expected", ErrCorrupt, s.path, wire.Seq, expected)
		}
		_, hash, err := openRecord(s.lastHash, wire)
		if err != nil {
			return fmt.Errorf("%s: %w", s.path, err)
		}

		s.index = append(s.index, fileIndexEntry{offset: offset, hash: hash})
		s.lastHash = hash
		offset = int64(decoder.NumBytesRead())
	}
	s.size = offset

	s.logger.Debug("journal opened",
		"first_seq", s.base,
		"records", len(s.index),
		"bytes", s.size,
	)
	return nil
}

// resetLocked empties the file and writes a fresh header starting at
// base with a zero anchor.
func (s *FileStore) resetLocked(base uint64) error {
	header, err := marshal(fileHeader{
		Magic:   fileMagic,
		Version: fileFormatVersion,
		BaseSeq: base,
		Anchor:  make([]byte, len(Hash{})),
	})
	if err != nil {
		return fmt.Errorf("encoding journal header: %w", err)
	}
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("resetting journal %s: %w", s.path, err)
	}
	if _, err := s.file.WriteAt(header, 0); err != nil {
		return fmt.Errorf("writing journal header to %s: %w", s.path, err)
	}
	if err := unix.Fdatasync(int(s.file.Fd())); err != nil {
		return fmt.Errorf("syncing journal header of %s: %w", s.path, err)
	}
	s.size = int64(len(header))
	s.base = base
	s.anchor = Hash{}
	s.lastHash = Hash{}
	s.index = nil
	return nil
}

func (s *FileStore) nextSeqLocked() uint64 {
	return s.base + uint64(len(s.index))
}

func (s *FileStore) Append(ctx context.Context, instance string, entry Entry) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return Record{}, ErrClosed
	}

	record := Record{
		Seq:      s.nextSeqLocked(),
		Instance: instance,
		Time:     normalizeTime(s.options.Clock.Now()),
		Entry:    entry,
	}
	if err := s.writeLocked(record); err != nil {
		return Record{}, err
	}
	return record, nil
}

func (s *FileStore) WriteRecord(ctx context.Context, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrClosed
	}

	next := s.nextSeqLocked()
	if record.Seq != next {
		if len(s.index) != 0 || record.Seq == 0 {
			return fmt.Errorf("%w: writing record %d, next is %d", ErrSeqOutOfRange, record.Seq, next)
		}
		if err := s.resetLocked(record.Seq); err != nil {
			return err
		}
	}
	record.Time = normalizeTime(record.Time)
	return s.writeLocked(record)
}

// writeLocked seals and appends one record. A failed write is rolled
// back so the file never ends in a partial record of our own making.
func (s *FileStore) writeLocked(record Record) error {
	wire, hash, err := sealRecord(s.lastHash, record, s.options.Compression)
	if err != nil {
		return err
	}
	data, err := marshal(wire)
	if err != nil {
		return fmt.Errorf("encoding record %d: %w", record.Seq, err)
	}

	if _, err := s.file.WriteAt(data, s.size); err != nil {
		s.file.Truncate(s.size)
		return fmt.Errorf("appending record %d to %s: %w", record.Seq, s.path, err)
	}
	if s.options.Sync == SyncAlways {
		if err := unix.Fdatasync(int(s.file.Fd())); err != nil {
			s.file.Truncate(s.size)
			return fmt.Errorf("syncing record %d to %s: %w", record.Seq, s.path, err)
		}
	}

	s.index = append(s.index, fileIndexEntry{offset: s.size, hash: hash})
	s.size += int64(len(data))
	s.lastHash = hash
	return nil
}

func (s *FileStore) Read(ctx context.Context, from uint64) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil, ErrClosed
	}

	next := s.nextSeqLocked()
	if from < s.base {
		from = s.base
	}
	if from >= next {
		return &sliceIterator{}, nil
	}

	position := from - s.base
	previous := s.anchor
	if position > 0 {
		previous = s.index[position-1].hash
	}
	start := s.index[position].offset

	reader, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s for reading: %w", s.path, err)
	}
	return &fileIterator{
		file:     reader,
		decoder:  newDecoder(io.NewSectionReader(reader, start, s.size-start)),
		previous: previous,
		next:     from,
		end:      next,
	}, nil
}

// fileIterator decodes records from a separate read-only handle,
// bounded to the bytes that existed when it was created.
type fileIterator struct {
	file     *os.File
	decoder  *cbor.Decoder
	previous Hash
	next     uint64
	end      uint64
}

func (it *fileIterator) Next() (Record, error) {
	if it.next >= it.end {
		return Record{}, io.EOF
	}
	var wire wireRecord
	if err := it.decoder.Decode(&wire); err != nil {
		return Record{}, fmt.Errorf("%w: reading record %d: %v", ErrCorrupt, it.next, err)
	}
	if wire.Seq != it.next {
		return Record{}, fmt.Errorf("%w: record %d where %d was expected", ErrCorrupt, wire.Seq, it.next)
	}
	record, hash, err := openRecord(it.previous, wire)
	if err != nil {
		return Record{}, err
	}
	it.previous = hash
	it.next++
	return record, nil
}

func (it *fileIterator) Close() error {
	return it.file.Close()
}

// TruncateBefore rewrites the journal without the records before seq.
// Retained records are copied byte for byte; the new header's anchor is
// the hash of the last discarded record, so the chain still verifies.
func (s *FileStore) TruncateBefore(ctx context.Context, seq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrClosed
	}

	next := s.nextSeqLocked()
	if seq < s.base || seq >= next {
		return fmt.Errorf("%w: truncating before %d, journal holds [%d, %d)", ErrSeqOutOfRange, seq, s.base, next)
	}
	position := seq - s.base
	start := s.index[position].offset

	var boundary wireRecord
	if err := newDecoder(io.NewSectionReader(s.file, start, s.size-start)).Decode(&boundary); err != nil {
		return fmt.Errorf("%w: reading record %d: %v", ErrCorrupt, seq, err)
	}
	if boundary.Kind != KindSnapshot {
		return fmt.Errorf("%w: record %d is %s", ErrNotSnapshotBoundary, seq, boundary.Kind)
	}
	if position == 0 {
		return nil
	}

	anchor := s.index[position-1].hash
	header, err := marshal(fileHeader{
		Magic:   fileMagic,
		Version: fileFormatVersion,
		BaseSeq: seq,
		Anchor:  anchor[:],
	})
	if err != nil {
		return fmt.Errorf("encoding journal header: %w", err)
	}

	err = atomicfile.Write(s.path, 0o600, func(w io.Writer) error {
		if _, err := w.Write(header); err != nil {
			return err
		}
		_, err := io.Copy(w, io.NewSectionReader(s.file, start, s.size-start))
		return err
	})
	if err != nil {
		return fmt.Errorf("truncating journal %s: %w", s.path, err)
	}

	// The rename replaced the inode we hold locked. Lock the new file
	// before releasing the old one.
	replacement, err := openLocked(s.path)
	if err != nil {
		return fmt.Errorf("reopening truncated journal: %w", err)
	}
	s.file.Close()
	s.file = replacement

	shift := start - int64(len(header))
	retained := make([]fileIndexEntry, 0, len(s.index)-int(position))
	for _, entry := range s.index[position:] {
		retained = append(retained, fileIndexEntry{offset: entry.offset - shift, hash: entry.hash})
	}
	s.index = retained
	s.size -= shift
	s.base = seq
	s.anchor = anchor

	s.logger.Info("journal truncated",
		"first_seq", seq,
		"discarded_records", position,
		"bytes", s.size,
	)
	return nil
}

func (s *FileStore) Bounds(ctx context.Context) (uint64, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return 0, 0, ErrClosed
	}
	return s.base, s.nextSeqLocked(), nil
}

func (s *FileStore) Len(ctx context.Context) (uint64, error) {
	first, next, err := s.Bounds(ctx)
	return next - first, err
}

// Close flushes the file, releases the lock and closes the store.
// Closing a closed store is a no-op.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	file := s.file
	s.file = nil

	syncErr := file.Sync()
	unix.Flock(int(file.Fd()), unix.LOCK_UN)
	closeErr := file.Close()
	if syncErr != nil {
		return fmt.Errorf("syncing journal %s: %w", s.path, syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing journal %s: %w", s.path, closeErr)
	}
	return nil
}
