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
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"unique"

	"github.com/cardinalhq/spillway/pipeline"
	"github.com/cardinalhq/spillway/pipeline/wkk"
)

// BinaryCodec is a compact, low-allocation binary page codec intended for
// process-local spill files. The format is not stable across process restarts:
// row keys are written as IDs into a process-level dictionary, never as
// strings, so a file can only be decoded by the process that wrote it.
//
// Stream layout: pages back to back until EOF. A page is a uvarint row count
// followed by its rows; a row is a uvarint field count followed by fields;
// a field is a 4-byte little-endian key ID, a tag byte, and the value.
type BinaryCodec struct{}

// NewBinaryCodec returns the process-local binary codec.
func NewBinaryCodec() *BinaryCodec {
	return &BinaryCodec{}
}

// Field type tags. Only the listed types are supported; spilling a page with
// any other value type is an encode error.
const (
	tagNil byte = iota + 1
	tagBool
	tagByte
	tagInt32
	tagInt64
	tagFloat64
	tagString
	tagBytes
	tagInt64Slice
	tagFloat64Slice
	tagStringSlice
	tagBoolSlice

	// Nil slice tags preserve typed nil vs empty slice.
	tagNilBytes
	tagNilInt64Slice
	tagNilFloat64Slice
	tagNilStringSlice
	tagNilBoolSlice
)

var (
	keyDictMu sync.RWMutex
	keyToID   = make(map[wkk.RowKey]uint32)
	idToKey   = make([]wkk.RowKey, 0, 256)
)

// stringBufPool provides reusable byte buffers for string decoding.
var stringBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 256)
		return &buf
	},
}

func ensureKeyID(key wkk.RowKey) uint32 {
	keyDictMu.RLock()
	id, ok := keyToID[key]
	keyDictMu.RUnlock()
	if ok {
		return id
	}

	keyDictMu.Lock()
	defer keyDictMu.Unlock()
	if id, ok := keyToID[key]; ok {
		return id
	}
	if len(idToKey) >= math.MaxUint32 {
		panic("spill key dictionary overflow: too many unique keys")
	}
	id = uint32(len(idToKey))
	keyToID[key] = id
	idToKey = append(idToKey, key)
	return id
}

func lookupKey(id uint32) (wkk.RowKey, bool) {
	keyDictMu.RLock()
	defer keyDictMu.RUnlock()
	if int(id) >= len(idToKey) {
		var zero wkk.RowKey
		return zero, false
	}
	return idToKey[id], true
}

// EncodePages drains seq and writes the binary stream to w, returning the
// total bytes written. On error the stream is left half-written; callers are
// expected to discard the file.
func (c *BinaryCodec) EncodePages(w io.Writer, seq pipeline.Sequence) (int64, error) {
	cw := &countingWriter{w: w}
	enc := &binaryEncoder{w: cw}
	for {
		page, err := seq.Next()
		if err == io.EOF {
			return cw.n, nil
		}
		if err != nil {
			return cw.n, err
		}
		if err := enc.encodePage(page); err != nil {
			return cw.n, err
		}
	}
}

// DecodePages returns a lazy sequence over the binary stream in r. The
// returned sequence is single-pass and not safe for concurrent use.
func (c *BinaryCodec) DecodePages(r io.Reader) pipeline.Sequence {
	return &binaryPageSequence{dec: &binaryDecoder{br: byteReader{r: r}}}
}

// binaryEncoder holds per-stream scratch buffers so encoding a row does not
// allocate.
type binaryEncoder struct {
	w         io.Writer
	varintBuf [binary.MaxVarintLen64]byte
	scalarBuf [9]byte
}

func (e *binaryEncoder) encodePage(page *pipeline.Page) error {
	if err := e.writeUvarint(uint64(page.Len())); err != nil {
		return err
	}
	for i := 0; i < page.Len(); i++ {
		if err := e.encodeRow(page.Row(i)); err != nil {
			return err
		}
	}
	return nil
}

func (e *binaryEncoder) encodeRow(row pipeline.Row) error {
	if err := e.writeUvarint(uint64(len(row))); err != nil {
		return err
	}
	for key, value := range row {
		binary.LittleEndian.PutUint32(e.scalarBuf[:4], ensureKeyID(key))
		if _, err := e.w.Write(e.scalarBuf[:4]); err != nil {
			return err
		}
		if err := e.encodeValue(value); err != nil {
			return err
		}
	}
	return nil
}

func (e *binaryEncoder) encodeValue(value any) error {
	switch v := value.(type) {
	case nil:
		return e.writeTag(tagNil)
	case bool:
		e.scalarBuf[0] = tagBool
		e.scalarBuf[1] = boolToByte(v)
		_, err := e.w.Write(e.scalarBuf[:2])
		return err
	case byte:
		e.scalarBuf[0] = tagByte
		e.scalarBuf[1] = v
		_, err := e.w.Write(e.scalarBuf[:2])
		return err
	case int32:
		e.scalarBuf[0] = tagInt32
		binary.LittleEndian.PutUint32(e.scalarBuf[1:5], uint32(v))
		_, err := e.w.Write(e.scalarBuf[:5])
		return err
	case int64:
		e.scalarBuf[0] = tagInt64
		binary.LittleEndian.PutUint64(e.scalarBuf[1:9], uint64(v))
		_, err := e.w.Write(e.scalarBuf[:9])
		return err
	case float64:
		e.scalarBuf[0] = tagFloat64
		binary.LittleEndian.PutUint64(e.scalarBuf[1:9], math.Float64bits(v))
		_, err := e.w.Write(e.scalarBuf[:9])
		return err
	case string:
		if err := e.writeTag(tagString); err != nil {
			return err
		}
		return e.writeLenPrefixed([]byte(v))
	case []byte:
		if v == nil {
			return e.writeTag(tagNilBytes)
		}
		if err := e.writeTag(tagBytes); err != nil {
			return err
		}
		return e.writeLenPrefixed(v)
	case []int64:
		if v == nil {
			return e.writeTag(tagNilInt64Slice)
		}
		if err := e.writeTag(tagInt64Slice); err != nil {
			return err
		}
		if err := e.writeUvarint(uint64(len(v))); err != nil {
			return err
		}
		for _, n := range v {
			binary.LittleEndian.PutUint64(e.scalarBuf[:8], uint64(n))
			if _, err := e.w.Write(e.scalarBuf[:8]); err != nil {
				return err
			}
		}
		return nil
	case []float64:
		if v == nil {
			return e.writeTag(tagNilFloat64Slice)
		}
		if err := e.writeTag(tagFloat64Slice); err != nil {
			return err
		}
		if err := e.writeUvarint(uint64(len(v))); err != nil {
			return err
		}
		for _, f := range v {
			binary.LittleEndian.PutUint64(e.scalarBuf[:8], math.Float64bits(f))
			if _, err := e.w.Write(e.scalarBuf[:8]); err != nil {
				return err
			}
		}
		return nil
	case []string:
		if v == nil {
			return e.writeTag(tagNilStringSlice)
		}
		if err := e.writeTag(tagStringSlice); err != nil {
			return err
		}
		if err := e.writeUvarint(uint64(len(v))); err != nil {
			return err
		}
		for _, s := range v {
			if err := e.writeLenPrefixed([]byte(s)); err != nil {
				return err
			}
		}
		return nil
	case []bool:
		if v == nil {
			return e.writeTag(tagNilBoolSlice)
		}
		if err := e.writeTag(tagBoolSlice); err != nil {
			return err
		}
		if err := e.writeUvarint(uint64(len(v))); err != nil {
			return err
		}
		for _, b := range v {
			e.scalarBuf[0] = boolToByte(b)
			if _, err := e.w.Write(e.scalarBuf[:1]); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported type %T", v)
	}
}

func (e *binaryEncoder) writeTag(tag byte) error {
	e.scalarBuf[0] = tag
	_, err := e.w.Write(e.scalarBuf[:1])
	return err
}

func (e *binaryEncoder) writeUvarint(v uint64) error {
	n := binary.PutUvarint(e.varintBuf[:], v)
	_, err := e.w.Write(e.varintBuf[:n])
	return err
}

func (e *binaryEncoder) writeLenPrefixed(data []byte) error {
	if err := e.writeUvarint(uint64(len(data))); err != nil {
		return err
	}
	_, err := e.w.Write(data)
	return err
}

// binaryPageSequence lazily decodes one page per Next call.
type binaryPageSequence struct {
	dec *binaryDecoder
	err error
}

func (s *binaryPageSequence) Next() (*pipeline.Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	page, err := s.dec.decodePage()
	if err != nil {
		// Once a stream errors (including EOF) it stays errored.
		s.err = err
		return nil, err
	}
	return page, nil
}

// binaryDecoder holds per-stream scratch buffers.
type binaryDecoder struct {
	br        byteReader
	scalarBuf [9]byte
}

func (d *binaryDecoder) decodePage() (*pipeline.Page, error) {
	rowCount, err := binary.ReadUvarint(&d.br)
	if err == io.EOF {
		// Clean page boundary: the stream is exhausted.
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read row count: %w", err)
	}

	page := pipeline.GetPooledPage()
	for i := uint64(0); i < rowCount; i++ {
		row := make(pipeline.Row)
		if err := d.decodeRow(row); err != nil {
			pipeline.ReturnPooledPage(page)
			return nil, err
		}
		page.AppendRow(row)
	}
	return page, nil
}

func (d *binaryDecoder) decodeRow(dst pipeline.Row) error {
	fieldCount, err := binary.ReadUvarint(&d.br)
	if err != nil {
		return fmt.Errorf("read field count: %w", err)
	}

	for i := uint64(0); i < fieldCount; i++ {
		if _, err := io.ReadFull(&d.br, d.scalarBuf[:4]); err != nil {
			return fmt.Errorf("read key id: %w", err)
		}
		keyID := binary.LittleEndian.Uint32(d.scalarBuf[:4])
		key, ok := lookupKey(keyID)
		if !ok {
			return fmt.Errorf("unknown key id %d", keyID)
		}

		tag, err := d.br.ReadByte()
		if err != nil {
			return fmt.Errorf("read type tag: %w", err)
		}

		value, err := d.decodeValue(tag)
		if err != nil {
			return err
		}
		dst[key] = value
	}
	return nil
}

func (d *binaryDecoder) decodeValue(tag byte) (any, error) {
	switch tag {
	case tagNil:
		return nil, nil
	case tagBool:
		b, err := d.br.ReadByte()
		return b == 1, err
	case tagByte:
		return d.br.ReadByte()
	case tagInt32:
		if _, err := io.ReadFull(&d.br, d.scalarBuf[:4]); err != nil {
			return nil, err
		}
		return int32(binary.LittleEndian.Uint32(d.scalarBuf[:4])), nil
	case tagInt64:
		if _, err := io.ReadFull(&d.br, d.scalarBuf[:8]); err != nil {
			return nil, err
		}
		return int64(binary.LittleEndian.Uint64(d.scalarBuf[:8])), nil
	case tagFloat64:
		if _, err := io.ReadFull(&d.br, d.scalarBuf[:8]); err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(d.scalarBuf[:8])), nil
	case tagString:
		return d.readString()
	case tagBytes:
		length, err := binary.ReadUvarint(&d.br)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(&d.br, buf); err != nil {
			return nil, err
		}
		return buf, nil
	case tagInt64Slice:
		length, err := binary.ReadUvarint(&d.br)
		if err != nil {
			return nil, err
		}
		out := make([]int64, length)
		for i := range out {
			if _, err := io.ReadFull(&d.br, d.scalarBuf[:8]); err != nil {
				return nil, err
			}
			out[i] = int64(binary.LittleEndian.Uint64(d.scalarBuf[:8]))
		}
		return out, nil
	case tagFloat64Slice:
		length, err := binary.ReadUvarint(&d.br)
		if err != nil {
			return nil, err
		}
		out := make([]float64, length)
		for i := range out {
			if _, err := io.ReadFull(&d.br, d.scalarBuf[:8]); err != nil {
				return nil, err
			}
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(d.scalarBuf[:8]))
		}
		return out, nil
	case tagStringSlice:
		length, err := binary.ReadUvarint(&d.br)
		if err != nil {
			return nil, err
		}
		out := make([]string, length)
		for i := range out {
			s, err := d.readString()
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	case tagBoolSlice:
		length, err := binary.ReadUvarint(&d.br)
		if err != nil {
			return nil, err
		}
		out := make([]bool, length)
		for i := range out {
			b, err := d.br.ReadByte()
			if err != nil {
				return nil, err
			}
			out[i] = b == 1
		}
		return out, nil
	case tagNilBytes:
		return []byte(nil), nil
	case tagNilInt64Slice:
		return []int64(nil), nil
	case tagNilFloat64Slice:
		return []float64(nil), nil
	case tagNilStringSlice:
		return []string(nil), nil
	case tagNilBoolSlice:
		return []bool(nil), nil
	default:
		return nil, fmt.Errorf("unknown type tag %d", tag)
	}
}

func (d *binaryDecoder) readString() (string, error) {
	length, err := binary.ReadUvarint(&d.br)
	if err != nil {
		return "", err
	}

	bufPtr := stringBufPool.Get().(*[]byte)
	buf := *bufPtr
	if cap(buf) < int(length) {
		buf = make([]byte, length)
	} else {
		buf = buf[:length]
	}

	if _, err := io.ReadFull(&d.br, buf); err != nil {
		*bufPtr = buf
		stringBufPool.Put(bufPtr)
		return "", err
	}

	// Intern to deduplicate repeated values (column names, dimension values).
	s := unique.Make(string(buf)).Value()

	*bufPtr = buf
	stringBufPool.Put(bufPtr)
	return s, nil
}

// byteReader adapts an io.Reader to io.ByteReader (and io.Reader) without
// allocating in ReadUvarint.
type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (br *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(br.r, br.buf[:]); err != nil {
		return 0, err
	}
	return br.buf[0], nil
}

func (br *byteReader) Read(p []byte) (int, error) {
	return br.r.Read(p)
}

func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
