package engine

import (
	"sort"
	"sync"
	"time"
)

// These thresholds and multipliers are adapted from the teacher's
// AutoScaler in scaler.go. There the factors feed an Evaluate call that
// self-executes a Scale; here they feed a read-only recommendation
// carried in state reports, since this worker's Non-goals reserve
// placement decisions for the manager.
const (
	metricsRetentionMultiplier = 3
	emergencyScaleFactor       = 10.0
	minScaleInStablePeriods    = 3
)

// MetricPoint is one timestamped container-count/health observation.
type MetricPoint struct {
	Timestamp       time.Time
	HealthyReplicas int
	TotalReplicas   int
}

// ScalingRecommendation is the advisor's non-binding output: what it
// would scale an app to, and why, carried in the next state report only.
type ScalingRecommendation struct {
	AppName        string  `json:"app_name"`
	CurrentReplicas int    `json:"current_replicas"`
	SuggestedReplicas int  `json:"suggested_replicas"`
	Reason         string  `json:"reason"`
}

// Advisor watches container health ratios per app over a sliding window
// and produces scaling recommendations without ever acting on them.
type Advisor struct {
	mu             sync.Mutex
	window         time.Duration
	history        map[string][]MetricPoint
	lastRecs       map[string]ScalingRecommendation
}

// NewAdvisor builds an Advisor retaining window of history per app.
func NewAdvisor(window time.Duration) *Advisor {
	return &Advisor{
		window:   window,
		history:  make(map[string][]MetricPoint),
		lastRecs: make(map[string]ScalingRecommendation),
	}
}

// Observe records one metric point for an app and recomputes its
// recommendation.
func (a *Advisor) Observe(appName string, point MetricPoint) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pts := append(a.history[appName], point)
	cutoff := point.Timestamp.Add(-a.window * metricsRetentionMultiplier)
	kept := pts[:0]
	for _, p := range pts {
		if p.Timestamp.After(cutoff) {
			kept = append(kept, p)
		}
	}
	a.history[appName] = kept

	a.lastRecs[appName] = computeRecommendation(appName, kept)
}

func computeRecommendation(appName string, pts []MetricPoint) ScalingRecommendation {
	if len(pts) == 0 {
		return ScalingRecommendation{AppName: appName}
	}
	latest := pts[len(pts)-1]
	rec := ScalingRecommendation{
		AppName:           appName,
		CurrentReplicas:   latest.TotalReplicas,
		SuggestedReplicas: latest.TotalReplicas,
		Reason:            "stable",
	}
	if latest.TotalReplicas == 0 {
		return rec
	}
	healthyRatio := float64(latest.HealthyReplicas) / float64(latest.TotalReplicas)
	switch {
	case latest.HealthyReplicas == 0:
		// Emergency case: every replica is down. The teacher's AutoScaler
		// would multiply its scale factor by emergencyScaleFactor here and
		// act on it immediately; this advisor only flags the condition,
		// leaving replica count unchanged since it never self-executes.
		rec.Reason = "no_healthy_replicas"
	case healthyRatio < 0.5 && stableForPeriods(pts, minScaleInStablePeriods):
		rec.SuggestedReplicas = latest.TotalReplicas + 1
		rec.Reason = "sustained_low_health_ratio"
	}
	return rec
}

func stableForPeriods(pts []MetricPoint, n int) bool {
	if len(pts) < n {
		return false
	}
	tail := pts[len(pts)-n:]
	for _, p := range tail {
		if p.TotalReplicas == 0 || float64(p.HealthyReplicas)/float64(p.TotalReplicas) >= 0.5 {
			return false
		}
	}
	return true
}

// Recommendations returns a stable-ordered snapshot of every app's
// current recommendation, for attaching to a state report.
func (a *Advisor) Recommendations() []ScalingRecommendation {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]ScalingRecommendation, 0, len(a.lastRecs))
	for _, rec := range a.lastRecs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppName < out[j].AppName })
	return out
}
