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

// Package spillmgr opens spill sessions across a set of spill roots. Roots
// are tried round-robin and a root is skipped while its filesystem is above
// the configured utilization ceiling, so one full disk does not take spilling
// down entirely.
package spillmgr

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cardinalhq/spillway/spill"
)

// DefaultMaxUsedFraction is the disk utilization above which a root is
// considered full.
const DefaultMaxUsedFraction = 0.9

// ErrNoSpillSpace is returned by OpenSession when every configured root is
// unusable or above the utilization ceiling.
var ErrNoSpillSpace = errors.New("no spill root has space available")

// DiskUsageFunc returns disk usage for a path.
type DiskUsageFunc func(path string) (usedBytes, totalBytes uint64, err error)

// Manager hands out spill sessions and owns the byte counter they share, so
// SpilledBytes reports the process-wide spill volume.
//
// Manager is safe for concurrent use; the sessions it returns are not.
type Manager struct {
	roots           []string
	maxUsedFraction float64
	getDiskUsage    DiskUsageFunc
	sessionOpts     spill.Options

	spilled atomic.Int64

	mu   sync.Mutex
	next int
}

// NewManager creates a manager over the given spill roots. opts is the
// template applied to every session; its SpilledBytes field is overridden
// with the manager's shared counter. A nil usage func selects DiskUsage.
func NewManager(roots []string, maxUsedFraction float64, opts spill.Options, usage DiskUsageFunc) *Manager {
	if maxUsedFraction <= 0 || maxUsedFraction > 1 {
		maxUsedFraction = DefaultMaxUsedFraction
	}
	if usage == nil {
		usage = DiskUsage
	}
	m := &Manager{
		roots:           roots,
		maxUsedFraction: maxUsedFraction,
		getDiskUsage:    usage,
		sessionOpts:     opts,
	}
	registerManagerGauges(m)
	return m
}

// OpenSession opens a session under the next root with space available.
// Returns ErrNoSpillSpace when every root is full or unusable.
func (m *Manager) OpenSession() (*spill.Session, error) {
	root, err := m.pickRoot()
	if err != nil {
		return nil, err
	}

	opts := m.sessionOpts
	opts.SpilledBytes = &m.spilled
	return spill.Open(root, opts)
}

// SpilledBytes returns the total bytes spilled by all sessions this manager
// has opened.
func (m *Manager) SpilledBytes() int64 {
	return m.spilled.Load()
}

func (m *Manager) pickRoot() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < len(m.roots); i++ {
		root := m.roots[(m.next+i)%len(m.roots)]

		// The root must exist before its filesystem can be examined.
		if err := os.MkdirAll(root, 0o755); err != nil {
			slog.Warn("Spill root unusable",
				slog.String("root", root),
				slog.Any("error", err))
			continue
		}

		used, total, err := m.getDiskUsage(root)
		if err != nil {
			slog.Warn("Spill root usage check failed",
				slog.String("root", root),
				slog.Any("error", err))
			continue
		}
		if total > 0 && float64(used)/float64(total) > m.maxUsedFraction {
			recordRootRejected(root)
			slog.Debug("Spill root above utilization ceiling",
				slog.String("root", root),
				slog.Float64("utilization", float64(used)/float64(total)))
			continue
		}

		m.next = (m.next + i + 1) % len(m.roots)
		return root, nil
	}
	return "", ErrNoSpillSpace
}
