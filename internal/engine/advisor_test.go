package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvisorRecommendsStableWhenHealthy(t *testing.T) {
	adv := NewAdvisor(time.Hour)
	now := time.Now()
	adv.Observe("web", MetricPoint{Timestamp: now, HealthyReplicas: 3, TotalReplicas: 3})

	recs := adv.Recommendations()
	require.Len(t, recs, 1)
	assert.Equal(t, "stable", recs[0].Reason)
	assert.Equal(t, 3, recs[0].SuggestedReplicas)
}

func TestAdvisorFlagsNoHealthyReplicasWithoutChangingCount(t *testing.T) {
	adv := NewAdvisor(time.Hour)
	now := time.Now()
	adv.Observe("web", MetricPoint{Timestamp: now, HealthyReplicas: 0, TotalReplicas: 3})

	recs := adv.Recommendations()
	require.Len(t, recs, 1)
	assert.Equal(t, "no_healthy_replicas", recs[0].Reason)
	assert.Equal(t, 3, recs[0].SuggestedReplicas)
}

func TestAdvisorSuggestsGrowthAfterSustainedLowHealth(t *testing.T) {
	adv := NewAdvisor(time.Hour)
	base := time.Now()
	for i := 0; i < minScaleInStablePeriods; i++ {
		adv.Observe("web", MetricPoint{
			Timestamp:       base.Add(time.Duration(i) * time.Minute),
			HealthyReplicas: 1,
			TotalReplicas:   4,
		})
	}

	recs := adv.Recommendations()
	require.Len(t, recs, 1)
	assert.Equal(t, "sustained_low_health_ratio", recs[0].Reason)
	assert.Equal(t, 5, recs[0].SuggestedReplicas)
}

func TestAdvisorRecommendationsSortedByAppName(t *testing.T) {
	adv := NewAdvisor(time.Hour)
	now := time.Now()
	adv.Observe("zeta", MetricPoint{Timestamp: now, HealthyReplicas: 1, TotalReplicas: 1})
	adv.Observe("alpha", MetricPoint{Timestamp: now, HealthyReplicas: 1, TotalReplicas: 1})

	recs := adv.Recommendations()
	require.Len(t, recs, 2)
	assert.Equal(t, "alpha", recs[0].AppName)
	assert.Equal(t, "zeta", recs[1].AppName)
}
