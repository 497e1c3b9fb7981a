// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package spill offloads pages of tabular rows to numbered files in a
// per-session temp directory and restores them in creation order. It sits
// between an execution engine's memory manager and the local filesystem.
package spill

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/spillway/pipeline"
	"github.com/cardinalhq/spillway/pipeline/rowcodec"
)

// DefaultWriteBufferSize is the buffered-I/O size used when Options does not
// override it.
const DefaultWriteBufferSize = 64 * 1024

// Options configures a session. Zero values select the defaults noted on each
// field.
type Options struct {
	// Codec frames pages on disk. Defaults to rowcodec.NewBinaryCodec().
	Codec rowcodec.PageCodec

	// Executor runs write tasks off the caller's goroutine. Defaults to
	// GoExecutor. One executor may be shared by many sessions.
	Executor Executor

	// SpilledBytes is the shared byte counter incremented on every successful
	// write. It is borrowed, never owned: pass the same counter to every
	// session whose spill volume should be accounted together. Defaults to a
	// private counter.
	SpilledBytes *atomic.Int64

	// WriteBufferSize is the bufio size for file I/O. Defaults to
	// DefaultWriteBufferSize.
	WriteBufferSize int
}

// spillFile descriptors exist from the moment a write is scheduled; the files
// themselves persist until Close.
type spillFile struct {
	index int
	path  string
}

// Session owns one spill area: a uniquely named directory and its numbered
// files. File indices are assigned strictly sequentially from 0 and never
// reused.
//
// A Session has no internal locking and is NOT safe for concurrent use.
// Callers serialize Spill, Spills, and Close themselves, normally by awaiting
// each returned Pending before the next call. The shared byte counter is the
// one exception: it is mutated only by atomic add and may be shared across
// sessions freely.
type Session struct {
	dir          string
	codec        rowcodec.PageCodec
	exec         Executor
	spilledBytes *atomic.Int64
	bufferSize   int

	files     []spillFile
	nextIndex int
	previous  *Pending
	readers   []io.Closer
	closed    bool
}

// Open creates a fresh, uniquely named spill directory under parentDir and
// returns a session rooted there. The parent is created if missing. Failure
// to create either directory wraps ErrStorageInit.
func Open(parentDir string, opts Options) (*Session, error) {
	codec := opts.Codec
	if codec == nil {
		codec = rowcodec.NewBinaryCodec()
	}
	exec := opts.Executor
	if exec == nil {
		exec = GoExecutor{}
	}
	counter := opts.SpilledBytes
	if counter == nil {
		counter = new(atomic.Int64)
	}
	bufferSize := opts.WriteBufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultWriteBufferSize
	}

	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create parent %s: %w", ErrStorageInit, parentDir, err)
	}
	dir := filepath.Join(parentDir, "spill-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStorageInit, dir, err)
	}

	recordSessionOpened()
	slog.Debug("Opened spill session", slog.String("dir", dir))

	return &Session{
		dir:          dir,
		codec:        codec,
		exec:         exec,
		spilledBytes: counter,
		bufferSize:   bufferSize,
		previous:     completedPending(),
	}, nil
}

// Dir returns the session's directory path.
func (s *Session) Dir() string {
	return s.dir
}

// FileCount returns the number of spill files created so far, counting a file
// from the moment its write is scheduled.
func (s *Session) FileCount() int {
	return len(s.files)
}

// SpilledBytes returns the current value of the session's byte counter. When
// the counter is shared, this is the total across all sessions sharing it.
func (s *Session) SpilledBytes() int64 {
	return s.spilledBytes.Load()
}

// Spill schedules an asynchronous write of seq to the next numbered file and
// returns the handle for that write. The previously scheduled write must have
// completed; calling Spill while one is still in flight is a programming
// fault and panics. seq is consumed exactly once, on the executor's
// goroutine — the caller must not touch it again.
//
// The file descriptor is recorded immediately, so FileCount and the sizing of
// a later Spills call are stable even while the write runs. Reading a file
// whose write has not completed is undefined.
func (s *Session) Spill(seq pipeline.Sequence) *Pending {
	s.mustBeIdle("Spill")

	idx := s.nextIndex
	s.nextIndex++
	path := filepath.Join(s.dir, fmt.Sprintf("%d.bin", idx))
	s.files = append(s.files, spillFile{index: idx, path: path})

	pending := s.exec.Submit(func() error {
		return s.writeFile(path, seq)
	})
	s.previous = pending
	return pending
}

// Close releases every still-open reader handle, then deletes every spill
// file and finally the session directory. All deletion failures are collected
// and returned wrapped in ErrCleanup; handles are always released first.
//
// Close panics if a write is still in flight — await the Pending first. A
// second Close is a no-op returning nil.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	if !s.previous.Done() {
		panic(fmt.Sprintf("spill: Close called while a write is in flight on session %s", s.dir))
	}
	s.closed = true

	var errs *multierror.Error
	for _, r := range s.readers {
		if err := r.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close reader: %w", err))
		}
	}
	s.readers = nil

	for _, f := range s.files {
		// A file may be missing when its write task failed before creation.
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			errs = multierror.Append(errs, fmt.Errorf("remove %s: %w", f.path, err))
		}
	}
	if err := os.Remove(s.dir); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("remove %s: %w", s.dir, err))
	}

	recordSessionClosed()

	if err := errs.ErrorOrNil(); err != nil {
		slog.Warn("Spill session cleanup failed",
			slog.String("dir", s.dir),
			slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrCleanup, err)
	}
	slog.Debug("Closed spill session",
		slog.String("dir", s.dir),
		slog.Int("files", len(s.files)))
	return nil
}

func (s *Session) mustBeIdle(op string) {
	if s.closed {
		panic(fmt.Sprintf("spill: %s called on closed session %s", op, s.dir))
	}
	if !s.previous.Done() {
		panic(fmt.Sprintf("spill: %s called while a write is in flight on session %s", op, s.dir))
	}
}
