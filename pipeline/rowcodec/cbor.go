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

package rowcodec

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/cardinalhq/spillway/pipeline"
)

// CBORCodec encodes pages as CBOR arrays of string-keyed maps. Spill files
// written with it are readable by any process, at the cost of writing key
// strings into every row.
//
// CBOR type behavior:
//   - all integers decode as int64; float32 decodes as float64
//   - []T slices decode as []any
//   - string, bool, []byte, nil are preserved exactly
//
// Rows that must round-trip with exact Go types should use BinaryCodec.
type CBORCodec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

// NewCBORCodec builds a CBOR codec with settings tuned for row data.
func NewCBORCodec() (*CBORCodec, error) {
	encMode, err := cbor.EncOptions{
		Sort:          cbor.SortNone,
		ShortestFloat: cbor.ShortestFloatNone,
		BigIntConvert: cbor.BigIntConvertNone,
		Time:          cbor.TimeUnixMicro,
		TimeTag:       cbor.EncTagNone,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	decMode, err := cbor.DecOptions{
		BigIntDec:      cbor.BigIntDecodeValue,
		IntDec:         cbor.IntDecConvertSigned,
		DefaultMapType: reflect.TypeOf(map[string]any{}),
		UTF8:           cbor.UTF8DecodeInvalid,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR decoder: %w", err)
	}

	return &CBORCodec{encMode: encMode, decMode: decMode}, nil
}

// EncodePages writes each page as one CBOR array of maps and returns the
// total bytes written.
func (c *CBORCodec) EncodePages(w io.Writer, seq pipeline.Sequence) (int64, error) {
	cw := &countingWriter{w: w}
	enc := c.encMode.NewEncoder(cw)
	for {
		page, err := seq.Next()
		if err == io.EOF {
			return cw.n, nil
		}
		if err != nil {
			return cw.n, err
		}
		rows := make([]map[string]any, page.Len())
		for i := 0; i < page.Len(); i++ {
			rows[i] = pipeline.ToStringMap(page.Row(i))
		}
		if err := enc.Encode(rows); err != nil {
			return cw.n, fmt.Errorf("encode page: %w", err)
		}
	}
}

// DecodePages returns a lazy sequence decoding one CBOR page per Next call.
func (c *CBORCodec) DecodePages(r io.Reader) pipeline.Sequence {
	return &cborPageSequence{dec: c.decMode.NewDecoder(r)}
}

type cborPageSequence struct {
	dec *cbor.Decoder
	err error
}

func (s *cborPageSequence) Next() (*pipeline.Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	var rows []map[string]any
	if err := s.dec.Decode(&rows); err != nil {
		if err == io.EOF {
			s.err = io.EOF
			return nil, io.EOF
		}
		s.err = fmt.Errorf("decode page: %w", err)
		return nil, s.err
	}
	page := pipeline.GetPooledPage()
	for _, m := range rows {
		page.AppendRow(pipeline.FromStringMap(m))
	}
	return page, nil
}
