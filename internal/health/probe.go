package health

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"dashmirror/internal/models"
	"dashmirror/internal/transport"
)

// probe performs one liveness check. A HEAD answer in 2xx-4xx proves the
// server is alive, a client error included. 5xx triggers a single GET
// retry because some home-server software mishandles HEAD. A redirect
// loop error also counts as alive: the server answered, we just refuse to
// chase it.
func (e *Engine) probe(ctx context.Context, svc models.Service) models.HealthSample {
	sample := models.HealthSample{
		ServiceID: svc.ID,
		Name:      svc.Name,
		State:     models.HealthUnhealthy,
	}

	start := time.Now()
	status, err := e.request(ctx, http.MethodHead, svc.URL)
	sample.LatencyMs = time.Since(start).Milliseconds()
	sample.CheckedAt = time.Now().UTC()

	if err == nil && status >= 500 {
		status, err = e.request(ctx, http.MethodGet, svc.URL)
		sample.LatencyMs = time.Since(start).Milliseconds()
		sample.CheckedAt = time.Now().UTC()
	}

	switch {
	case err == nil:
		sample.StatusCode = &status
		if status >= 200 && status < 500 {
			sample.State = models.HealthHealthy
		}
	case isRedirectLoop(err):
		sample.State = models.HealthHealthy
		sample.Error = err.Error()
	default:
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "request timed out"
		}
		sample.Error = msg
	}
	return sample
}

func (e *Engine) request(ctx context.Context, method, url string) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, transport.ProbeRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := e.httpc.Probe.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

// isRedirectLoop matches the transport error produced when a client gives
// up following redirects.
func isRedirectLoop(err error) bool {
	return err != nil && strings.Contains(err.Error(), "stopped after")
}
