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

// Package rowcodec provides page-stream codecs for spill files.
//
// Two implementations exist: BinaryCodec, a compact process-local format that
// relies on an in-process key dictionary, and CBORCodec, which is larger on
// disk but readable by other processes.
package rowcodec

import (
	"io"

	"github.com/cardinalhq/spillway/pipeline"
)

// PageCodec serializes a stream of pages to a byte sink and back.
//
// Implementations stream page by page in both directions: EncodePages never
// buffers the whole sequence, and the sequence returned by DecodePages decodes
// one page per Next call.
type PageCodec interface {
	// EncodePages drains seq in order, writes the encoded stream to w, and
	// returns the total number of bytes written.
	EncodePages(w io.Writer, seq pipeline.Sequence) (int64, error)

	// DecodePages returns a lazy, single-pass sequence of the pages encoded
	// in r. Decode errors surface from the sequence's Next.
	DecodePages(r io.Reader) pipeline.Sequence
}

// countingWriter tracks bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
