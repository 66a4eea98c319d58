package metrics

import (
	"math"
	"sort"
	"time"

	"dashmirror/internal/models"
)

// ServiceUptime summarises probe history for one service.
type ServiceUptime struct {
	ServiceID     string  `json:"service_id"`
	Name          string  `json:"name"`
	UptimePercent float64 `json:"uptime_percent"`
	TotalChecks   int     `json:"total_checks"`
	Passing       int     `json:"passing"`
	Failing       int     `json:"failing"`
	LastState     string  `json:"last_state,omitempty"`
	LastChecked   string  `json:"last_checked,omitempty"`
}

// ComputeServiceUptime aggregates uptime statistics per service from the
// retained cycle history.
func ComputeServiceUptime(cycles []models.HealthCycle) []ServiceUptime {
	type acc struct {
		name      string
		passing   int
		failing   int
		lastState models.HealthState
		lastTime  time.Time
	}
	state := make(map[string]*acc)
	for _, cycle := range cycles {
		for _, sample := range cycle.Samples {
			target := state[sample.ServiceID]
			if target == nil {
				target = &acc{name: sample.Name}
				state[sample.ServiceID] = target
			}
			if sample.State == models.HealthHealthy {
				target.passing++
			} else {
				target.failing++
			}
			if sample.CheckedAt.After(target.lastTime) {
				target.lastState = sample.State
				target.lastTime = sample.CheckedAt
			}
		}
	}
	if len(state) == 0 {
		return nil
	}

	ids := make([]string, 0, len(state))
	for id := range state {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	results := make([]ServiceUptime, 0, len(ids))
	for _, id := range ids {
		data := state[id]
		total := data.passing + data.failing
		uptime := 0.0
		if total > 0 {
			uptime = float64(data.passing) / float64(total) * 100
		}

		result := ServiceUptime{
			ServiceID:     id,
			Name:          data.name,
			UptimePercent: round2(uptime),
			TotalChecks:   total,
			Passing:       data.passing,
			Failing:       data.failing,
			LastState:     string(data.lastState),
		}
		if !data.lastTime.IsZero() {
			result.LastChecked = data.lastTime.UTC().Format(time.RFC3339)
		}
		results = append(results, result)
	}
	return results
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
