// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girishdigge/dreamscapes-sub008/internal/dream"
)

func TestCacheGetMissThenPutThenHit(t *testing.T) {
	c := New(10, DefaultTTLPolicy(), nil)

	_, ok := c.Get("fp1")
	assert.False(t, ok)

	artifact := &dream.Artifact{ID: "a1"}
	c.PutFingerprint(context.Background(), "fp1", artifact, dream.QualityStandardReq, dream.SourceAI)

	entry, ok := c.Get("fp1")
	require.True(t, ok)
	assert.Equal(t, "a1", entry.Artifact.ID)
	assert.Equal(t, int64(1), entry.Hits)
}

func TestCacheEvictsLRUOldestWhenOverCapacity(t *testing.T) {
	c := New(2, DefaultTTLPolicy(), nil)
	ctx := context.Background()

	c.PutFingerprint(ctx, "fp1", &dream.Artifact{ID: "a1"}, dream.QualityStandardReq, dream.SourceAI)
	c.PutFingerprint(ctx, "fp2", &dream.Artifact{ID: "a2"}, dream.QualityStandardReq, dream.SourceAI)
	c.PutFingerprint(ctx, "fp3", &dream.Artifact{ID: "a3"}, dream.QualityStandardReq, dream.SourceAI)

	_, ok := c.Get("fp1")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.Get("fp3")
	assert.True(t, ok)

	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCacheGetEvictsExpiredEntry(t *testing.T) {
	policy := TTLPolicy{Standard: time.Millisecond}
	c := New(10, policy, nil)
	c.PutFingerprint(context.Background(), "fp1", &dream.Artifact{ID: "a1"}, dream.QualityStandardReq, dream.SourceAI)

	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("fp1")
	assert.False(t, ok)
}

func TestGetOrBuildCallsBuildOnMiss(t *testing.T) {
	c := New(10, DefaultTTLPolicy(), nil)
	var calls int32

	build := func(ctx context.Context) (*dream.Artifact, dream.Quality, dream.Source, error) {
		atomic.AddInt32(&calls, 1)
		return &dream.Artifact{ID: "built"}, dream.QualityStandardReq, dream.SourceAI, nil
	}

	entry, hit, err := c.GetOrBuild(context.Background(), "fp1", build)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "built", entry.Artifact.ID)

	entry2, hit2, err := c.GetOrBuild(context.Background(), "fp1", build)
	require.NoError(t, err)
	assert.True(t, hit2)
	assert.Equal(t, "built", entry2.Artifact.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrBuildCoalescesConcurrentCallers(t *testing.T) {
	c := New(10, DefaultTTLPolicy(), nil)
	var calls int32
	release := make(chan struct{})

	build := func(ctx context.Context) (*dream.Artifact, dream.Quality, dream.Source, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &dream.Artifact{ID: "built"}, dream.QualityStandardReq, dream.SourceAI, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrBuild(context.Background(), "fp1", build)
			assert.NoError(t, err)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrBuildPropagatesBuildError(t *testing.T) {
	c := New(10, DefaultTTLPolicy(), nil)
	boom := assert.AnError

	_, _, err := c.GetOrBuild(context.Background(), "fp1", func(ctx context.Context) (*dream.Artifact, dream.Quality, dream.Source, error) {
		return nil, "", "", boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestInvalidateBySource(t *testing.T) {
	c := New(10, DefaultTTLPolicy(), nil)
	ctx := context.Background()
	c.PutFingerprint(ctx, "fp1", &dream.Artifact{ID: "a1"}, dream.QualityStandardReq, dream.SourceAI)
	c.PutFingerprint(ctx, "fp2", &dream.Artifact{ID: "a2"}, dream.QualityStandardReq, dream.SourceLocalFallback)

	removed := c.Invalidate(InvalidateBySource, string(dream.SourceAI))
	assert.Equal(t, 1, removed)

	_, ok := c.Get("fp1")
	assert.False(t, ok)
	_, ok = c.Get("fp2")
	assert.True(t, ok)
}

func TestInvalidateByFailedAI(t *testing.T) {
	c := New(10, DefaultTTLPolicy(), nil)
	ctx := context.Background()
	c.PutFingerprint(ctx, "fp1", &dream.Artifact{ID: "a1"}, dream.QualityStandardReq, dream.SourceAI)
	c.PutFingerprint(ctx, "fp2", &dream.Artifact{ID: "a2"}, dream.QualityStandardReq, dream.SourceLocalFallback)
	c.PutFingerprint(ctx, "fp3", &dream.Artifact{ID: "a3"}, dream.QualityStandardReq, dream.SourceSafeFallback)

	removed := c.Invalidate(InvalidateByFailedAI, "")
	assert.Equal(t, 2, removed)
}

func TestInvalidateAll(t *testing.T) {
	c := New(10, DefaultTTLPolicy(), nil)
	ctx := context.Background()
	c.PutFingerprint(ctx, "fp1", &dream.Artifact{ID: "a1"}, dream.QualityStandardReq, dream.SourceAI)
	c.PutFingerprint(ctx, "fp2", &dream.Artifact{ID: "a2"}, dream.QualityStandardReq, dream.SourceAI)

	removed := c.Invalidate(InvalidateAll, "")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestSweepRemovesOnlyExpiredEntries(t *testing.T) {
	c := New(10, TTLPolicy{Standard: time.Millisecond, High: time.Hour}, nil)
	ctx := context.Background()
	c.PutFingerprint(ctx, "fp1", &dream.Artifact{ID: "a1"}, dream.QualityStandardReq, dream.SourceAI)
	c.PutFingerprint(ctx, "fp2", &dream.Artifact{ID: "a2"}, dream.QualityHighReq, dream.SourceAI)

	time.Sleep(5 * time.Millisecond)

	removed := c.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Stats().Size)
}

func TestStatsReportsHitRate(t *testing.T) {
	c := New(10, DefaultTTLPolicy(), nil)
	ctx := context.Background()
	c.PutFingerprint(ctx, "fp1", &dream.Artifact{ID: "a1"}, dream.QualityStandardReq, dream.SourceAI)

	c.Get("fp1")
	c.Get("fp1")
	c.Get("missing")

	stats := c.Stats()
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.0001)
}

func TestSetTTLPolicyAppliesToSubsequentPuts(t *testing.T) {
	c := New(10, DefaultTTLPolicy(), nil)
	ctx := context.Background()

	c.SetTTLPolicy(TTLPolicy{Standard: time.Millisecond})
	c.PutFingerprint(ctx, "fp1", &dream.Artifact{ID: "a1"}, dream.QualityStandardReq, dream.SourceAI)

	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("fp1")
	assert.False(t, ok, "entry written under the reloaded TTL should have expired")
}

func TestTTLFor(t *testing.T) {
	p := DefaultTTLPolicy()
	assert.Equal(t, p.Draft, p.TTLFor(dream.QualityDraftReq))
	assert.Equal(t, p.High, p.TTLFor(dream.QualityHighReq))
	assert.Equal(t, p.Cinematic, p.TTLFor(dream.QualityCinematicReq))
	assert.Equal(t, p.Standard, p.TTLFor(""))
}
