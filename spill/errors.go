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

import "errors"

// Error kinds surfaced by this package. Every failure wraps its underlying
// cause; match with errors.Is. Nothing is retried anywhere — each of these is
// the caller's problem to handle, typically by abandoning the session.
var (
	// ErrStorageInit means the session directory could not be created.
	ErrStorageInit = errors.New("spill storage initialization failed")

	// ErrSpillWrite means a scheduled write task failed on I/O or encoding.
	// It is reported through the Pending handle; the half-written file stays
	// on disk until Close.
	ErrSpillWrite = errors.New("spill write failed")

	// ErrSpillRead means a spill file could not be opened or decoded.
	ErrSpillRead = errors.New("spill read failed")

	// ErrCleanup means Close failed to delete a file or the directory.
	// In-memory reader handles are still released before it is returned.
	ErrCleanup = errors.New("spill cleanup failed")

	// ErrSessionClosed is returned by read-back sequences pulled after the
	// session was closed.
	ErrSessionClosed = errors.New("spill session closed")
)
