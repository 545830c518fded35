// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
)

// GateState tells a call whether host-queued work must be processed
// before it proceeds.
type GateState uint32

const (
	GateQuiescent GateState = iota
	GateHasPending
)

func (s GateState) String() string {
	if s == GateHasPending {
		return "has_pending"
	}
	return "quiescent"
}

// PendingKind classifies queued host work.
type PendingKind uint8

const (
	PendingSignal PendingKind = iota
	PendingUnwind
	PendingRewind
)

func (k PendingKind) String() string {
	switch k {
	case PendingSignal:
		return "signal"
	case PendingUnwind:
		return "unwind"
	case PendingRewind:
		return "rewind"
	default:
		return "unknown"
	}
}

// PendingOperation is one unit of host work delivered to the instance
// at its next call boundary. Run is set for unwinds and rewinds and is
// invoked on the calling goroutine under the call lock.
type PendingOperation struct {
	Kind   PendingKind
	Signal wasi.Signal
	Run    func(ctx context.Context) error
}

// PendingQueue collects host work from any goroutine. The state is
// readable without the lock so the common quiescent path costs one
// atomic load.
type PendingQueue struct {
	state atomic.Uint32

	mu         sync.Mutex
	operations []PendingOperation
}

// State reports whether operations are queued.
func (q *PendingQueue) State() GateState {
	return GateState(q.state.Load())
}

// Push queues op for the next call boundary.
func (q *PendingQueue) Push(op PendingOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.operations = append(q.operations, op)
	q.state.Store(uint32(GateHasPending))
}

// take removes and returns everything queued, leaving the gate
// quiescent.
func (q *PendingQueue) take() []PendingOperation {
	if q.State() == GateQuiescent {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	operations := q.operations
	q.operations = nil
	q.state.Store(uint32(GateQuiescent))
	return operations
}

// Len returns the number of queued operations.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.operations)
}
