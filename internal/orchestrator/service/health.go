package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/chainapsis/oko-tss/internal/orchestrator/registry"
	"github.com/chainapsis/oko-tss/pkg/logger"
)

// HealthChecker probes every registered node's /health endpoint on a fixed
// period and records the outcomes.
type HealthChecker struct {
	registry registry.Registry
	client   *http.Client
	period   time.Duration
}

func NewHealthChecker(reg registry.Registry, timeout, period time.Duration) *HealthChecker {
	return &HealthChecker{
		registry: reg,
		client:   &http.Client{Timeout: timeout},
		period:   period,
	}
}

// Start runs the probe loop until ctx is cancelled.
func (h *HealthChecker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(h.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.probeAll(ctx)
			}
		}
	}()
}

func (h *HealthChecker) probeAll(ctx context.Context) {
	nodes, err := h.registry.ListNodes(ctx)
	if err != nil {
		logger.Error("Health check could not list nodes", err)
		return
	}
	for _, node := range nodes {
		healthy := h.probe(ctx, node.ServerURL)
		if err := h.registry.RecordHealthCheck(ctx, node.ID, healthy); err != nil {
			logger.Warn("Could not record health check", "node", node.Name, "error", err.Error())
		}
		if !healthy {
			logger.Warn("Key share node unhealthy", "node", node.Name, "endpoint", node.ServerURL)
		}
	}
}

func (h *HealthChecker) probe(ctx context.Context, endpoint string) bool {
	url := strings.TrimRight(endpoint, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
