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

package pipeline

import "io"

// Sequence is a pull-based, forward-only, single-pass stream of pages.
// Next returns io.EOF once the stream is exhausted.
type Sequence interface {
	Next() (*Page, error)
}

// SliceSequence adapts an in-memory slice of pages to a Sequence.
// Swap this for an operator output when wiring the spiller into an engine.
type SliceSequence struct {
	pages []*Page
	pos   int
}

func NewSliceSequence(pages []*Page) *SliceSequence {
	return &SliceSequence{pages: pages}
}

func (s *SliceSequence) Next() (*Page, error) {
	if s.pos >= len(s.pages) {
		return nil, io.EOF
	}
	p := s.pages[s.pos]
	s.pos++
	return p, nil
}

// Collect drains a sequence into memory. Intended for tests and small
// read-backs; it defeats the point of lazy decoding on large spills.
func Collect(seq Sequence) ([]*Page, error) {
	var pages []*Page
	for {
		p, err := seq.Next()
		if err == io.EOF {
			return pages, nil
		}
		if err != nil {
			return pages, err
		}
		pages = append(pages, p)
	}
}
