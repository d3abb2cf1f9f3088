// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package obslog

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultCoalesceWindow is the window within which repeated identical
// classifications collapse into one log line.
const DefaultCoalesceWindow = 5 * time.Second

// Coalescer suppresses repeated log emissions for the same key within a
// sliding window, so a provider failing in a tight loop produces one line
// per window instead of one per attempt.
type Coalescer struct {
	window time.Duration

	mu         sync.Mutex
	lastAt     map[string]time.Time
	suppressed map[string]int
}

// NewCoalescer constructs a Coalescer; window <= 0 falls back to the default.
func NewCoalescer(window time.Duration) *Coalescer {
	if window <= 0 {
		window = DefaultCoalesceWindow
	}
	return &Coalescer{
		window:     window,
		lastAt:     make(map[string]time.Time),
		suppressed: make(map[string]int),
	}
}

// Admit reports whether an emission for key should be logged now. When it
// returns true, suppressed is how many identical emissions were swallowed
// since the last admitted one, so the log line can account for them.
func (c *Coalescer) Admit(key string) (admit bool, suppressed int) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.lastAt[key]; ok && now.Sub(last) < c.window {
		c.suppressed[key]++
		return false, 0
	}

	n := c.suppressed[key]
	delete(c.suppressed, key)
	c.lastAt[key] = now
	return true, n
}

// LevelFor maps a classified-error severity to the logrus level the one
// emitted line should carry.
func LevelFor(severity string) log.Level {
	switch severity {
	case "critical":
		return log.ErrorLevel
	case "high":
		return log.ErrorLevel
	case "medium":
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}
