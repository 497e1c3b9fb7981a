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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	sessionsOpenedCounter metric.Int64Counter
	sessionsClosedCounter metric.Int64Counter
	spillWritesCounter    metric.Int64Counter
	spillBytesCounter     metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/spillway/spill")

	var err error

	sessionsOpenedCounter, err = meter.Int64Counter(
		"spillway.sessions.opened",
		metric.WithDescription("Number of spill sessions opened"),
	)
	if err != nil {
		panic(err)
	}

	sessionsClosedCounter, err = meter.Int64Counter(
		"spillway.sessions.closed",
		metric.WithDescription("Number of spill sessions closed"),
	)
	if err != nil {
		panic(err)
	}

	spillWritesCounter, err = meter.Int64Counter(
		"spillway.spill.writes",
		metric.WithDescription("Number of spill files written successfully"),
	)
	if err != nil {
		panic(err)
	}

	spillBytesCounter, err = meter.Int64Counter(
		"spillway.spill.bytes",
		metric.WithDescription("Total bytes written to spill files"),
	)
	if err != nil {
		panic(err)
	}
}

func recordSessionOpened() {
	sessionsOpenedCounter.Add(context.Background(), 1)
}

func recordSessionClosed() {
	sessionsClosedCounter.Add(context.Background(), 1)
}

func recordSpillWrite(bytes int64) {
	ctx := context.Background()
	spillWritesCounter.Add(ctx, 1)
	spillBytesCounter.Add(ctx, bytes)
}
