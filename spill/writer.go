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
	"log/slog"
	"os"

	"github.com/cardinalhq/spillway/pipeline"
)

// writeFile streams seq page by page through the codec into a new file at
// path, then adds the codec-reported byte count to the shared counter. Runs
// on the executor's goroutine.
//
// On failure nothing is cleaned up: the half-written file stays on disk and
// is removed with everything else at Close. The byte counter is only bumped
// on full success.
func (s *Session) writeFile(path string, seq pipeline.Sequence) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrSpillWrite, path, err)
	}

	bw := bufio.NewWriterSize(f, s.bufferSize)
	n, err := s.codec.EncodePages(bw, seq)
	if err == nil {
		err = bw.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSpillWrite, path, err)
	}

	s.spilledBytes.Add(n)
	recordSpillWrite(n)
	slog.Debug("Spilled pages to disk",
		slog.String("path", path),
		slog.Int64("bytes", n))
	return nil
}
