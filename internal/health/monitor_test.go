// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girishdigge/dreamscapes-sub008/internal/manager"
	"github.com/girishdigge/dreamscapes-sub008/internal/provider"
)

type fakeProviders struct {
	reports []manager.HealthReport
}

func (f *fakeProviders) GetProviderHealth(name string) ([]manager.HealthReport, error) {
	return f.reports, nil
}

func TestMonitorEmitsStatusChangedOnFailure(t *testing.T) {
	mgr := &fakeProviders{reports: []manager.HealthReport{{Name: "p1", Status: manager.StatusHealthy}}}
	mock := provider.NewMockAdapter("p1")
	mock.ConnectErr = errors.New("unreachable")

	var mu sync.Mutex
	var events []Event
	m := New(Config{Interval: time.Hour, ProbeTimeout: time.Second, MaxConcurrentProbes: 2}, mgr, func(name string) (provider.Adapter, bool) {
		if name == "p1" {
			return mock, true
		}
		return nil, false
	})
	m.AddEventHandler(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	m.runCycle(context.Background())

	mu.Lock()
	defer mu.Unlock()
	var found bool
	for _, e := range events {
		if e.Kind == EventStatusChanged && e.Provider == "p1" {
			found = true
			assert.Equal(t, "unhealthy", e.Data["current"])
		}
	}
	require.True(t, found, "expected a status_changed event for p1")
}

func TestMonitorStartStop(t *testing.T) {
	mgr := &fakeProviders{}
	m := New(Config{Interval: 10 * time.Millisecond, ProbeTimeout: time.Second, MaxConcurrentProbes: 2}, mgr, func(name string) (provider.Adapter, bool) {
		return nil, false
	})

	m.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	assert.GreaterOrEqual(t, m.Stats().TotalCycles, int64(1))
}
