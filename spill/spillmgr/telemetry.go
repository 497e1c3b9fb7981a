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

package spillmgr

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var rootRejections metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/spillway/spill/spillmgr")

	var err error

	rootRejections, err = meter.Int64Counter(
		"spillway.spillmgr.root_rejections",
		metric.WithDescription("Number of times a spill root was skipped for being above the utilization ceiling"),
	)
	if err != nil {
		log.Fatalf("failed to create spillmgr.root_rejections counter: %v", err)
	}
}

func registerManagerGauges(m *Manager) {
	meter := otel.Meter("github.com/cardinalhq/spillway/spill/spillmgr")

	_, err := meter.Int64ObservableGauge(
		"spillway.spillmgr.spilled_bytes",
		metric.WithDescription("Total bytes spilled by sessions opened through this manager"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.SpilledBytes())
			return nil
		}),
	)
	if err != nil {
		log.Fatalf("failed to create spillmgr.spilled_bytes gauge: %v", err)
	}
}

func recordRootRejected(root string) {
	rootRejections.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("root", root)))
}
