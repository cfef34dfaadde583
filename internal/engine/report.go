package engine

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// StateReport is what the worker publishes after each reconciliation
// cycle: a snapshot echo plus this node's own identity, consumed by
// whatever dashboards or audit trails subscribe to the bus. Apps is kept
// as a map here (unlike DeviceGroupSnapshot.Apps) since this is the
// worker's own outbound shape, not something decoded off the manager's
// wire format.
type StateReport struct {
	WorkerID      string                `json:"worker_id"`
	Timestamp     int64                 `json:"timestamp"`
	DeviceGroupID int64                 `json:"device_group_id"`
	PruneID       int64                 `json:"prune_id"`
	Apps          map[string]AppSpec    `json:"apps"`
	Recommendations []ScalingRecommendation `json:"scaling_recommendations,omitempty"`
}

// Publisher is the worker's dependency on a message bus producer.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Reporter emits a StateReport after every reconciliation cycle. Its
// failure policy is governed by reportingFailHard: when true, a publish
// error is fatal (worker.py's try/except around the Kafka push re-raises
// when reporting_fail_hard is set); when false, a publish error is logged
// and swallowed. The reportingFailHard value comes from its own
// reporting_fail_hard setting, independent of kafka_bootstrap_servers —
// see DESIGN.md.
type Reporter struct {
	workerID          string
	publisher         Publisher
	reportingFailHard bool
	advisor           *Advisor
}

// NewReporter builds a Reporter. publisher may be nil, meaning reporting
// is disabled entirely (no bus configured).
func NewReporter(workerID string, publisher Publisher, reportingFailHard bool, advisor *Advisor) *Reporter {
	return &Reporter{workerID: workerID, publisher: publisher, reportingFailHard: reportingFailHard, advisor: advisor}
}

// Report builds and publishes a StateReport for the given snapshot.
func (r *Reporter) Report(ctx context.Context, snap DeviceGroupSnapshot) {
	if r.publisher == nil {
		return
	}

	report := StateReport{
		WorkerID:      r.workerID,
		Timestamp:     time.Now().Unix(),
		DeviceGroupID: snap.DeviceGroupID,
		PruneID:       snap.PruneID,
		Apps:          snap.indexByName(),
	}
	if r.advisor != nil {
		report.Recommendations = r.advisor.Recommendations()
	}

	body, err := json.Marshal(report)
	if err != nil {
		log.Printf("reporter: failed to marshal state report: %v", err)
		return
	}

	if err := r.publisher.Publish(ctx, r.workerID, body); err != nil {
		if r.reportingFailHard {
			Fatal("reporter: publish failed and reporting_fail_hard is set: %v", err)
		}
		log.Printf("reporter: publish failed, continuing (reporting_fail_hard is false): %v", err)
	}
}
