package handlers

import (
	"net/http"
	"sort"
	"time"

	domain "github.com/nitu-designer/lehangas/internal/domain"
	"github.com/nitu-designer/lehangas/internal/platform/httpx"
	"github.com/nitu-designer/lehangas/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
	synced map[string]func() bool
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService sets the service consulted by /readyz.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) { h.system = svc }
}

// WithHealthBuildInfo sets the metadata reported by /healthz.
func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) { h.build = info }
}

// WithHealthClock overrides the clock, mainly for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthSyncCheck makes /readyz fail until synced reports true.
func WithHealthSyncCheck(name string, synced func() bool) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && synced != nil {
			h.synced[name] = synced
		}
	}
}

// NewHealthHandlers builds the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now, synced: make(map[string]func() bool)}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// Healthz reports process liveness with build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":      domain.HealthStatusOK,
		"version":     h.build.Version,
		"commitSha":   h.build.CommitSHA,
		"environment": h.build.Environment,
		"uptime":      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		"timestamp":   now.Format(time.RFC3339),
	})
}

type readinessCheck struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

// Readyz reports dependency health. A degraded optional dependency still answers 200.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		serviceUnavailable(ctx, w, "system")
		return
	}
	report, err := h.system.HealthReport(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("readiness_failed", err.Error(), http.StatusServiceUnavailable))
		return
	}

	checks := make(map[string]readinessCheck, len(report.Checks)+len(h.synced))
	details := make([]string, 0)
	for name, check := range report.Checks {
		checks[name] = readinessCheck{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		}
		if check.Status != domain.HealthStatusOK && check.Error != "" {
			details = append(details, name+": "+check.Error)
		}
	}
	status := report.Status
	if status == "" {
		status = domain.HealthStatusOK
	}
	for name, synced := range h.synced {
		if synced() {
			checks[name] = readinessCheck{Status: domain.HealthStatusOK}
			continue
		}
		checks[name] = readinessCheck{Status: domain.HealthStatusError, Error: "not synced"}
		details = append(details, name+": not synced")
		status = domain.HealthStatusError
	}
	sort.Strings(details)

	code := http.StatusOK
	if status == domain.HealthStatusError {
		code = http.StatusServiceUnavailable
	}
	generatedAt := report.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = h.clock()
	}
	httpx.WriteJSON(w, code, map[string]any{
		"status":      status,
		"version":     report.Version,
		"commitSha":   report.CommitSHA,
		"environment": report.Environment,
		"uptime":      report.Uptime.Round(time.Second).String(),
		"generatedAt": formatTime(generatedAt),
		"checks":      checks,
		"details":     details,
	})
}
