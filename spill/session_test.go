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

package spill

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/spillway/pipeline"
	"github.com/cardinalhq/spillway/pipeline/wkk"
)

func testRow(v int64) pipeline.Row {
	return pipeline.Row{
		wkk.NewRowKey("value"):  v,
		wkk.NewRowKey("label"):  "test",
		wkk.NewRowKey("series"): []int64{v, v + 1},
	}
}

func requirePageRows(t *testing.T, page *pipeline.Page, want ...pipeline.Row) {
	t.Helper()
	require.Equal(t, len(want), page.Len())
	for i := range want {
		require.Equal(t, want[i], page.Row(i))
	}
}

// spillAndWait schedules one write and blocks until it completes.
func spillAndWait(t *testing.T, s *Session, pages ...*pipeline.Page) {
	t.Helper()
	require.NoError(t, s.Spill(pipeline.NewSliceSequence(pages)).Wait(context.Background()))
}

func TestSession_RoundTrip(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	rowA, rowB := testRow(1), testRow(2)
	spillAndWait(t, s, pipeline.NewPage(rowA), pipeline.NewPage(rowB))

	seqs, err := s.Spills()
	require.NoError(t, err)
	require.Len(t, seqs, 1)

	pages, err := pipeline.Collect(seqs[0])
	require.NoError(t, err)
	require.Len(t, pages, 2)
	requirePageRows(t, pages[0], rowA)
	requirePageRows(t, pages[1], rowB)
}

func TestSession_MultiSpillOrdering(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	rowA, rowB, rowC := testRow(1), testRow(2), testRow(3)
	spillAndWait(t, s, pipeline.NewPage(rowA), pipeline.NewPage(rowB))
	spillAndWait(t, s, pipeline.NewPage(rowC))
	require.Equal(t, 2, s.FileCount())

	seqs, err := s.Spills()
	require.NoError(t, err)
	require.Len(t, seqs, 2)

	first, err := pipeline.Collect(seqs[0])
	require.NoError(t, err)
	require.Len(t, first, 2)
	requirePageRows(t, first[0], rowA)
	requirePageRows(t, first[1], rowB)

	second, err := pipeline.Collect(seqs[1])
	require.NoError(t, err)
	require.Len(t, second, 1)
	requirePageRows(t, second[0], rowC)
}

func TestSession_FilesAreNumberedSequentially(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	spillAndWait(t, s, pipeline.NewPage(testRow(1)))
	spillAndWait(t, s)
	spillAndWait(t, s, pipeline.NewPage(testRow(2)))

	for i := 0; i < 3; i++ {
		_, err := os.Stat(filepath.Join(s.Dir(), filepath.Base(s.files[i].path)))
		require.NoError(t, err)
		require.Equal(t, i, s.files[i].index)
	}
	require.Equal(t, "0.bin", filepath.Base(s.files[0].path))
	require.Equal(t, "2.bin", filepath.Base(s.files[2].path))
}

// gatedSequence blocks in Next until released, keeping a write in flight for
// as long as the test needs.
type gatedSequence struct {
	release chan struct{}
}

func (g *gatedSequence) Next() (*pipeline.Page, error) {
	<-g.release
	return nil, io.EOF
}

func TestSession_SingleFlightEnforced(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)

	gate := &gatedSequence{release: make(chan struct{})}
	pending := s.Spill(gate)
	require.False(t, pending.Done())

	require.Panics(t, func() { s.Spill(pipeline.NewSliceSequence(nil)) })
	require.Panics(t, func() { _, _ = s.Spills() })
	require.Panics(t, func() { _ = s.Close() })

	close(gate.release)
	require.NoError(t, pending.Wait(context.Background()))

	// Session state survives the faults: the next spill still works.
	spillAndWait(t, s, pipeline.NewPage(testRow(9)))
	require.Equal(t, 2, s.FileCount())
	require.NoError(t, s.Close())
}

func TestSession_ByteAccounting(t *testing.T) {
	var counter atomic.Int64
	s, err := Open(t.TempDir(), Options{SpilledBytes: &counter})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	spillAndWait(t, s, pipeline.NewPage(testRow(1), testRow(2)))

	info, err := os.Stat(filepath.Join(s.Dir(), "0.bin"))
	require.NoError(t, err)
	require.Positive(t, info.Size())
	require.Equal(t, info.Size(), counter.Load())
	require.Equal(t, info.Size(), s.SpilledBytes())
}

func TestSession_SharedCounterAcrossSessions(t *testing.T) {
	var counter atomic.Int64

	s1, err := Open(t.TempDir(), Options{SpilledBytes: &counter})
	require.NoError(t, err)
	defer func() { _ = s1.Close() }()
	s2, err := Open(t.TempDir(), Options{SpilledBytes: &counter})
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	spillAndWait(t, s1, pipeline.NewPage(testRow(1)))
	first := counter.Load()
	require.Positive(t, first)

	spillAndWait(t, s2, pipeline.NewPage(testRow(2), testRow(3)))
	info, err := os.Stat(filepath.Join(s2.Dir(), "0.bin"))
	require.NoError(t, err)
	require.Equal(t, first+info.Size(), counter.Load())
}

func TestSession_EmptySpill(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	spillAndWait(t, s)
	require.Equal(t, 1, s.FileCount())
	require.Equal(t, int64(0), s.SpilledBytes())

	info, err := os.Stat(filepath.Join(s.Dir(), "0.bin"))
	require.NoError(t, err)
	require.Equal(t, int64(0), info.Size())

	seqs, err := s.Spills()
	require.NoError(t, err)
	require.Len(t, seqs, 1)
	pages, err := pipeline.Collect(seqs[0])
	require.NoError(t, err)
	require.Empty(t, pages)
}

func TestSession_CloseRemovesEverything(t *testing.T) {
	parent := t.TempDir()
	s, err := Open(parent, Options{})
	require.NoError(t, err)
	dir := s.Dir()

	spillAndWait(t, s, pipeline.NewPage(testRow(1)))
	spillAndWait(t, s, pipeline.NewPage(testRow(2)))

	seqs, err := s.Spills()
	require.NoError(t, err)
	// Consume one sequence partially; its handle must still be released.
	_, err = seqs[0].Next()
	require.NoError(t, err)

	require.NoError(t, s.Close())

	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))

	// Previously returned sequences are unusable after close.
	_, err = seqs[0].Next()
	require.ErrorIs(t, err, ErrSessionClosed)
	_, err = seqs[1].Next()
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestSession_UseAfterClosePanics(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.Panics(t, func() { s.Spill(pipeline.NewSliceSequence(nil)) })
	require.Panics(t, func() { _, _ = s.Spills() })
}

// failingSequence errors partway through to simulate an encode/read failure.
type failingSequence struct {
	pages int
	err   error
}

func (f *failingSequence) Next() (*pipeline.Page, error) {
	if f.pages > 0 {
		f.pages--
		return pipeline.NewPage(testRow(0)), nil
	}
	return nil, f.err
}

func TestSession_WriteFailureSurfacesOnHandle(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)

	cause := errors.New("page source exploded")
	pending := s.Spill(&failingSequence{pages: 1, err: cause})

	err = pending.Wait(context.Background())
	require.ErrorIs(t, err, ErrSpillWrite)
	require.ErrorIs(t, err, cause)

	// The half-written file stays on disk until close.
	_, statErr := os.Stat(filepath.Join(s.Dir(), "0.bin"))
	require.NoError(t, statErr)

	// The session remains usable for inspection and close.
	require.Equal(t, 1, s.FileCount())
	require.NoError(t, s.Close())
	_, statErr = os.Stat(s.Dir())
	require.True(t, os.IsNotExist(statErr))
}

func TestSession_ReadBackFailedWrite(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	cause := errors.New("page source exploded")
	err = s.Spill(&failingSequence{pages: 1, err: cause}).Wait(context.Background())
	require.ErrorIs(t, err, ErrSpillWrite)

	// The partial file is still enumerated; decoding it fails at pull time
	// with a read error, not a crash.
	seqs, err := s.Spills()
	require.NoError(t, err)
	require.Len(t, seqs, 1)
	_, err = pipeline.Collect(seqs[0])
	if err != nil {
		require.ErrorIs(t, err, ErrSpillRead)
	}
}

func TestOpen_FailsOnBadParent(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(parent, []byte("file in the way"), 0o644))

	_, err := Open(parent, Options{})
	require.ErrorIs(t, err, ErrStorageInit)
}

func TestSession_SharedExecutor(t *testing.T) {
	exec := NewPoolExecutor(2)
	defer exec.Wait()

	var counter atomic.Int64
	var sessions []*Session
	for i := 0; i < 3; i++ {
		s, err := Open(t.TempDir(), Options{Executor: exec, SpilledBytes: &counter})
		require.NoError(t, err)
		sessions = append(sessions, s)
	}

	var pendings []*Pending
	for i, s := range sessions {
		pendings = append(pendings, s.Spill(pipeline.NewSliceSequence(
			[]*pipeline.Page{pipeline.NewPage(testRow(int64(i)))})))
	}
	for _, p := range pendings {
		require.NoError(t, p.Wait(context.Background()))
	}
	require.Positive(t, counter.Load())

	for _, s := range sessions {
		require.NoError(t, s.Close())
	}
}
