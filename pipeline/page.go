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

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("github.com/cardinalhq/spillway/pipeline")

	pagePoolGetsCounter metric.Int64Counter
	pagePoolPutsCounter metric.Int64Counter
)

func init() {
	var err error

	pagePoolGetsCounter, err = meter.Int64Counter(
		"spillway.pipeline.pagepool.gets",
		metric.WithDescription("Total number of gets from the page pool"),
	)
	if err != nil {
		panic(err)
	}

	pagePoolPutsCounter, err = meter.Int64Counter(
		"spillway.pipeline.pagepool.puts",
		metric.WithDescription("Total number of puts back to the page pool"),
	)
	if err != nil {
		panic(err)
	}
}

// Page is an ordered batch of rows, the unit of data exchanged with the
// execution engine and the unit the spiller writes to disk.
//
// Pages obtained from GetPooledPage may be returned with ReturnPooledPage once
// the caller is done with them. Rows inside a returned page must not be
// retained; use CopyRow first.
type Page struct {
	rows []Row
}

// NewPage creates a page holding the given rows. The page takes ownership of
// the row values but not the backing slice.
func NewPage(rows ...Row) *Page {
	p := &Page{rows: make([]Row, 0, len(rows))}
	p.rows = append(p.rows, rows...)
	return p
}

// Len returns the number of rows in the page.
func (p *Page) Len() int {
	return len(p.rows)
}

// Row returns the i-th row. The returned map is still owned by the page.
func (p *Page) Row(i int) Row {
	return p.rows[i]
}

// AppendRow adds a row to the end of the page.
func (p *Page) AppendRow(row Row) {
	p.rows = append(p.rows, row)
}

var pagePool = sync.Pool{
	New: func() any {
		return &Page{rows: make([]Row, 0, 64)}
	},
}

// GetPooledPage returns an empty page from the pool.
func GetPooledPage() *Page {
	pagePoolGetsCounter.Add(context.Background(), 1)
	p := pagePool.Get().(*Page)
	p.rows = p.rows[:0]
	return p
}

// ReturnPooledPage gives a page back to the pool. The caller must not touch
// the page afterwards.
func ReturnPooledPage(p *Page) {
	pagePoolPutsCounter.Add(context.Background(), 1)
	// Drop row references so the maps can be collected.
	for i := range p.rows {
		p.rows[i] = nil
	}
	p.rows = p.rows[:0]
	pagePool.Put(p)
}
