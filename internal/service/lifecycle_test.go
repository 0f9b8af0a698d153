package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/console-gate/internal/testutil"
)

type recordingMetrics struct {
	mu        sync.Mutex
	counts    map[string]int64
	countTags map[string]map[string]string
	gauges    map[string]float64
	timings   map[string]time.Duration
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		counts:    make(map[string]int64),
		countTags: make(map[string]map[string]string),
		gauges:    make(map[string]float64),
		timings:   make(map[string]time.Duration),
	}
}

func (r *recordingMetrics) Count(name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name] += value
	r.countTags[name] = tags
}

func (r *recordingMetrics) Gauge(name string, value float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = value
}

func (r *recordingMetrics) Timing(name string, value time.Duration, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings[name] = value
}

func TestLifecycleEmitsConnectionMetrics(t *testing.T) {
	metrics := newRecordingMetrics()
	lifecycle := NewLifecycleCoordinator(metrics, nil)
	ctx := context.Background()

	f := newAdmissionFixture(2, 8)
	f.sessions.Put(testutil.NewSession().WithID("s-1").Build())

	adm, err := f.controller.Admit(ctx, "s-1", "10.0.0.1", "")
	require.NoError(t, err)

	conn := lifecycle.Connect(ctx, adm)
	assert.EqualValues(t, 1, metrics.counts["conn.connected"])
	assert.EqualValues(t, 1, metrics.gauges["conn.active"])

	lifecycle.Disconnect(ctx, conn)
	assert.EqualValues(t, 1, metrics.counts["conn.disconnected"])
	assert.Equal(t, map[string]string{"reason": "normal"}, metrics.countTags["conn.disconnected"])
	assert.EqualValues(t, 0, metrics.gauges["conn.active"])

	_, ok := metrics.timings["conn.lifetime"]
	assert.True(t, ok, "disconnect records the connection lifetime")
}

func TestLifecycleDisconnectTagsErrorReason(t *testing.T) {
	metrics := newRecordingMetrics()
	lifecycle := NewLifecycleCoordinator(metrics, nil)
	ctx := context.Background()

	f := newAdmissionFixture(2, 8)
	f.sessions.Put(testutil.NewSession().WithID("s-1").Build())

	adm, err := f.controller.Admit(ctx, "s-1", "10.0.0.1", "")
	require.NoError(t, err)

	conn := lifecycle.Connect(ctx, adm)
	conn.SetCloseReason("error")
	lifecycle.Disconnect(ctx, conn)

	assert.Equal(t, map[string]string{"reason": "error"}, metrics.countTags["conn.disconnected"])
}

func TestLifecycleDoubleDisconnectCountsOnce(t *testing.T) {
	metrics := newRecordingMetrics()
	lifecycle := NewLifecycleCoordinator(metrics, nil)
	ctx := context.Background()

	f := newAdmissionFixture(2, 8)
	f.sessions.Put(testutil.NewSession().WithID("s-1").Build())

	adm, err := f.controller.Admit(ctx, "s-1", "10.0.0.1", "")
	require.NoError(t, err)

	conn := lifecycle.Connect(ctx, adm)
	lifecycle.Disconnect(ctx, conn)
	lifecycle.Disconnect(ctx, conn)

	assert.EqualValues(t, 1, metrics.counts["conn.disconnected"])
	assert.EqualValues(t, 0, metrics.gauges["conn.active"], "second disconnect must not drive the gauge negative")
}
