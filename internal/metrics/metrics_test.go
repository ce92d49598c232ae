package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDroppedByReason(t *testing.T) {
	before := testutil.ToFloat64(FragmentsDroppedTotal.WithLabelValues(ReasonChecksum))
	FragmentsDroppedTotal.WithLabelValues(ReasonChecksum).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(FragmentsDroppedTotal.WithLabelValues(ReasonChecksum)))
}

func TestServerServesMetrics(t *testing.T) {
	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())
	addr := s.Addr()

	FramesCompletedTotal.Inc()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	assert.Contains(t, string(body), "vizor_frames_completed_total")
	assert.Contains(t, string(body), "vizor_reassembly_active_groups")
}

func TestServerStartBusyPort(t *testing.T) {
	first := NewServer("127.0.0.1:0", "")
	require.NoError(t, first.Start(context.Background()))
	defer first.Stop(context.Background())

	second := NewServer(first.Addr(), "")
	assert.Error(t, second.Start(context.Background()))
}

func TestServerStopWithoutStart(t *testing.T) {
	s := NewServer(":0", "/m")
	assert.NoError(t, s.Stop(context.Background()))
}
