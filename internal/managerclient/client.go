// Package managerclient implements the worker's HTTP connection to the
// Nebula manager: fetching a device group's snapshot with bounded
// exponential-backoff retries, adapted in spirit from worker.py's
// @retry-decorated get_device_group_info (wait_exponential_multiplier=200,
// wait_exponential_max=1000, stop_max_attempt_number=10), expressed with
// github.com/cenkalti/backoff/v4 the way psviderski-uncloud's docker
// client package uses it for daemon-readiness polling.
package managerclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nebulaorch/worker/internal/engine"
)

// ErrDeviceGroupAbsent is returned when the manager reports (via HTTP 403)
// that the device group no longer exists — a condition the bootstrapper
// retries forever rather than treating as fatal or as a simple transient
// failure.
var ErrDeviceGroupAbsent = fmt.Errorf("device group does not exist")

// Client talks to the Nebula manager's device-group snapshot endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a manager client against baseURL (the configured
// nebula_manager_url).
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 15 * time.Second}}
}

// CheckAPI performs the startup liveness check the bootstrapper requires
// before proceeding, matching worker.py's fatal check_api() call.
func (c *Client) CheckAPI(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("managerclient: manager unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("managerclient: manager health check returned %d", resp.StatusCode)
	}
	return nil
}

// FetchSnapshot fetches the device group's current snapshot, retrying
// transient failures up to 10 attempts total with a 200ms initial and 1s
// max backoff interval — the same bound as worker.py's retry decorator,
// via backoff.WithMaxRetries(9) since that option counts retries after
// the first attempt. A 403 response is translated to
// ErrDeviceGroupAbsent and is NOT retried here: the bootstrapper is
// responsible for its own infinite outer retry loop around that specific
// condition, matching the two distinct retry policies in worker.py's
// startup code.
func (c *Client) FetchSnapshot(ctx context.Context, deviceGroupName string) (engine.DeviceGroupSnapshot, error) {
	var snapshot engine.DeviceGroupSnapshot

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 1 * time.Second
	policy.MaxElapsedTime = 0
	bounded := backoff.WithMaxRetries(policy, 9)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/device_groups/"+deviceGroupName, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err // network error: retryable
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(ErrDeviceGroupAbsent)
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			decoded, err := engine.DecodeSnapshot(body)
			if err != nil {
				return backoff.Permanent(err)
			}
			snapshot = decoded
			return nil
		default:
			return fmt.Errorf("managerclient: unexpected status %d", resp.StatusCode)
		}
	}

	if err := backoff.Retry(op, bounded); err != nil {
		return engine.DeviceGroupSnapshot{}, err
	}
	return snapshot, nil
}

// ReportState pushes a state report body to the manager's reporting
// endpoint. engine.Reporter does not call it; state reports go out only
// through the Reporter's Publisher.
func (c *Client) ReportState(ctx context.Context, deviceGroupName string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/device_groups/"+deviceGroupName+"/report", nil)
	if err != nil {
		return err
	}
	req.Body = io.NopCloser(bytes.NewReader(payload))
	req.ContentLength = int64(len(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("managerclient: report state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("managerclient: report state returned %d", resp.StatusCode)
	}
	return nil
}

