// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// MockService implements suture.Service for tree tests. It can fail a set
// number of times and can ignore cancellation for a while to exercise the
// shutdown timeout.
type MockService struct {
	name       string
	startCount atomic.Int32
	stopCount  atomic.Int32
	failCount  atomic.Int32

	mu        sync.Mutex
	maxFails  int32
	stopDelay time.Duration
	started   chan struct{}
}

// NewMockService creates a mock named name.
func NewMockService(name string) *MockService {
	return &MockService{name: name, started: make(chan struct{}, 16)}
}

// Serve implements suture.Service.
func (m *MockService) Serve(ctx context.Context) error {
	m.startCount.Add(1)
	defer m.stopCount.Add(1)

	select {
	case m.started <- struct{}{}:
	default:
	}

	m.mu.Lock()
	maxFails := m.maxFails
	stopDelay := m.stopDelay
	m.mu.Unlock()

	if maxFails > 0 && m.failCount.Add(1) <= maxFails {
		return errors.New("simulated failure")
	}

	<-ctx.Done()
	time.Sleep(stopDelay)
	return ctx.Err()
}

// SetFailCount makes the next n calls to Serve fail immediately.
func (m *MockService) SetFailCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxFails = int32(n) //nolint:gosec // test helper, small n
}

// SetStopDelay makes Serve linger after cancellation.
func (m *MockService) SetStopDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopDelay = d
}

// WaitStarted blocks until Serve has been entered n times or timeout passes.
func (m *MockService) WaitStarted(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-m.started:
		case <-deadline:
			return false
		}
	}
	return true
}

// StartCount returns how many times Serve was called.
func (m *MockService) StartCount() int32 {
	return m.startCount.Load()
}

// StopCount returns how many times Serve returned.
func (m *MockService) StopCount() int32 {
	return m.stopCount.Load()
}

// String implements fmt.Stringer.
func (m *MockService) String() string {
	return m.name
}
