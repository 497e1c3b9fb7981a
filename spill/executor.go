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

	"golang.org/x/sync/errgroup"
)

// Pending represents the completion of one scheduled write task. It is
// complete exactly once; after Done reports true, Err is stable.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// completedPending returns a handle that is already complete with no error.
// A fresh session starts with one so the first Spill needs no special case.
func completedPending() *Pending {
	p := newPending()
	close(p.done)
	return p
}

// complete records the task result. Must be called exactly once.
func (p *Pending) complete(err error) {
	p.err = err
	close(p.done)
}

// Done reports whether the task has finished, successfully or not.
func (p *Pending) Done() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task completes or ctx is cancelled. A cancelled wait
// does not cancel the write: the task still runs to completion and the caller
// must still await (or replace) the session before reusing it.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task result. Only meaningful once Done reports true.
func (p *Pending) Err() error {
	return p.err
}

// Executor runs a write task off the caller's goroutine. The session submits
// at most one task at a time, but one executor may be shared by many sessions.
type Executor interface {
	Submit(task func() error) *Pending
}

// GoExecutor runs each task on its own goroutine.
type GoExecutor struct{}

func (GoExecutor) Submit(task func() error) *Pending {
	p := newPending()
	go func() {
		p.complete(task())
	}()
	return p
}

// PoolExecutor bounds the number of concurrently running tasks across all
// sessions sharing it. Submit blocks while the pool is saturated; the returned
// handle completes when the task itself does.
type PoolExecutor struct {
	g *errgroup.Group
}

// NewPoolExecutor creates an executor running at most limit tasks at once.
func NewPoolExecutor(limit int) *PoolExecutor {
	g := new(errgroup.Group)
	g.SetLimit(limit)
	return &PoolExecutor{g: g}
}

func (e *PoolExecutor) Submit(task func() error) *Pending {
	p := newPending()
	e.g.Go(func() error {
		p.complete(task())
		return nil
	})
	return p
}

// Wait blocks until every submitted task has finished. Task errors are
// reported through their Pending handles, not here.
func (e *PoolExecutor) Wait() {
	_ = e.g.Wait()
}
