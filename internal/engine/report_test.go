package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published [][]byte
	fail      bool
}

func (f *fakePublisher) Publish(ctx context.Context, key string, value []byte) error {
	if f.fail {
		return assert.AnError
	}
	f.published = append(f.published, value)
	return nil
}

func TestReporterPublishesStateReport(t *testing.T) {
	pub := &fakePublisher{}
	r := NewReporter("worker-1", pub, false, nil)
	snap := DeviceGroupSnapshot{
		DeviceGroupID: 5,
		PruneID:       2,
		AppsList:      []string{"web"},
		Apps:          []AppSpec{testApp("web", 2)},
	}

	r.Report(context.Background(), snap)

	require.Len(t, pub.published, 1)
	var got StateReport
	require.NoError(t, json.Unmarshal(pub.published[0], &got))
	assert.Equal(t, "worker-1", got.WorkerID)
	assert.EqualValues(t, 5, got.DeviceGroupID)
	assert.EqualValues(t, 2, got.PruneID)
	assert.Contains(t, got.Apps, "web")
}

func TestReporterNilPublisherIsNoop(t *testing.T) {
	r := NewReporter("worker-1", nil, true, nil)
	assert.NotPanics(t, func() {
		r.Report(context.Background(), DeviceGroupSnapshot{})
	})
}

func TestReporterSwallowsPublishErrorWhenNotFailHard(t *testing.T) {
	pub := &fakePublisher{fail: true}
	r := NewReporter("worker-1", pub, false, nil)
	assert.NotPanics(t, func() {
		r.Report(context.Background(), DeviceGroupSnapshot{AppsList: []string{}, Apps: []AppSpec{}})
	})
}

func TestReporterAttachesAdvisorRecommendations(t *testing.T) {
	pub := &fakePublisher{}
	adv := NewAdvisor(time.Hour)
	adv.Observe("web", MetricPoint{Timestamp: time.Now(), HealthyReplicas: 2, TotalReplicas: 2})
	r := NewReporter("worker-1", pub, false, adv)

	r.Report(context.Background(), DeviceGroupSnapshot{AppsList: []string{}, Apps: []AppSpec{}})

	require.Len(t, pub.published, 1)
	var got StateReport
	require.NoError(t, json.Unmarshal(pub.published[0], &got))
	require.Len(t, got.Recommendations, 1)
	assert.Equal(t, "web", got.Recommendations[0].AppName)
}
