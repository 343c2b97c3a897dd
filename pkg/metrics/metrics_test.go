package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewTimerStartsImmediately(t *testing.T) {
	timer := NewTimer()
	require.True(t, time.Since(timer.start) < time.Second)
}

func TestTimerDurationGrowsMonotonically(t *testing.T) {
	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	d1 := timer.Duration()
	time.Sleep(10 * time.Millisecond)
	d2 := timer.Duration()
	require.Greater(t, d2, d1)
}

func TestTimerObserveDurationRecordsToHistogram(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_objstore_duration_seconds",
		Help: "test histogram",
	})
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDuration(h)
	require.Greater(t, timer.Duration(), time.Duration(0))
}

func TestHandlerServesPrometheusExposition(t *testing.T) {
	FragmentsTotal.Set(3)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

type fakeSource struct{}

func (fakeSource) FragmentCount() int              { return 7 }
func (fakeSource) FragmentBucketCount() int        { return 2 }
func (fakeSource) CollectionCount() int            { return 1 }
func (fakeSource) WALPendingCount() int            { return 0 }
func (fakeSource) OnodeCacheSizes() map[string]int { return map[string]int{"c0": 4} }

func TestCollectorSamplesSourceIntoGauges(t *testing.T) {
	c := NewCollector(fakeSource{})
	c.collect()

	require.Equal(t, float64(7), testutil.ToFloat64(FragmentsTotal))
	require.Equal(t, float64(2), testutil.ToFloat64(FragmentBucketsTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(CollectionsTotal))
}
