package delivery

import (
	"context"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jmgilman/go/assets/internal/logging"
)

// CheckEndpointHealth probes every configured endpoint concurrently and
// reports which answered its health path with a 2xx status. It does not
// touch the failover state.
func (m *Manager) CheckEndpointHealth(ctx context.Context) map[string]bool {
	ctx, span := m.tracer.Start(ctx, "delivery.CheckEndpointHealth")
	defer span.End()

	logger := m.logger.WithOperation(logging.OpProbe)
	endpoints := m.endpoints.All()

	var mu sync.Mutex
	status := make(map[string]bool, len(endpoints))

	var g errgroup.Group
	for _, ep := range endpoints {
		g.Go(func() error {
			healthy := m.probe(ctx, ep)
			if !healthy {
				logger.Warn(ctx, "endpoint probe failed", "endpoint", ep.Name)
			}
			mu.Lock()
			status[ep.Name] = healthy
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return status
}

func (m *Manager) probe(ctx context.Context, ep Endpoint) bool {
	target, err := ep.HealthURL()
	if err != nil {
		return false
	}

	if timeout := m.policy.Retry.HealthTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}
