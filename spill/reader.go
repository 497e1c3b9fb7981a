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
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/cardinalhq/spillway/pipeline"
)

// Spills returns one lazy page sequence per spill file created so far, in
// ascending creation order. Each sequence is forward-only and single-pass;
// pages are decoded on demand as the caller pulls them.
//
// The most recently scheduled write must have completed; calling Spills with
// a write in flight is a programming fault and panics. The underlying file
// handles are registered with the session and released at Close, after which
// every returned sequence yields ErrSessionClosed.
//
// Open failure on any file wraps ErrSpillRead; decode failures surface later,
// from the affected sequence's Next.
func (s *Session) Spills() ([]pipeline.Sequence, error) {
	s.mustBeIdle("Spills")

	out := make([]pipeline.Sequence, 0, len(s.files))
	for _, sf := range s.files {
		seq, err := s.openReader(sf)
		if err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, nil
}

func (s *Session) openReader(sf spillFile) (pipeline.Sequence, error) {
	f, err := os.Open(sf.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrSpillRead, sf.path, err)
	}
	s.readers = append(s.readers, f)

	br := bufio.NewReaderSize(f, s.bufferSize)
	return &fileSequence{
		session: s,
		path:    sf.path,
		inner:   s.codec.DecodePages(br),
	}, nil
}

// fileSequence guards one file's decoded page stream with the session
// lifecycle.
type fileSequence struct {
	session *Session
	path    string
	inner   pipeline.Sequence
}

func (q *fileSequence) Next() (*pipeline.Page, error) {
	if q.session.closed {
		return nil, ErrSessionClosed
	}
	page, err := q.inner.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSpillRead, q.path, err)
	}
	return page, nil
}
