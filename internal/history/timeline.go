package history

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"dashmirror/internal/models"
)

const (
	// DefaultTimelinePoints controls how many dots are generated per service.
	DefaultTimelinePoints = 80
	maxDetailsPerPoint    = 4
)

type sample struct {
	Timestamp time.Time
	State     models.HealthState
	Error     string
}

// BuildServiceTimelines converts retained cycle history into compact
// per-service up/down timelines for the overview UI.
func BuildServiceTimelines(cycles []models.HealthCycle, start, end time.Time, points int) []models.ServiceTimeline {
	if points <= 0 {
		points = DefaultTimelinePoints
	}
	if !end.After(start) {
		end = start.Add(time.Minute)
	}

	names := make(map[string]string)
	samplesByID := make(map[string][]sample)
	for _, cycle := range cycles {
		for _, s := range cycle.Samples {
			if s.ServiceID == "" {
				continue
			}
			if names[s.ServiceID] == "" {
				names[s.ServiceID] = s.Name
			}
			samplesByID[s.ServiceID] = append(samplesByID[s.ServiceID], sample{
				Timestamp: s.CheckedAt,
				State:     s.State,
				Error:     s.Error,
			})
		}
	}
	if len(names) == 0 {
		return nil
	}

	ids := make([]string, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return strings.ToLower(names[ids[i]]) < strings.ToLower(names[ids[j]])
	})

	result := make([]models.ServiceTimeline, 0, len(ids))
	for _, id := range ids {
		result = append(result, models.ServiceTimeline{
			ServiceID:   id,
			ServiceName: names[id],
			Timeline:    buildTimeline(samplesByID[id], start, end, points),
		})
	}
	return result
}

func buildTimeline(samples []sample, start, end time.Time, points int) []models.TimelinePoint {
	output := make([]models.TimelinePoint, 0, points)
	if len(samples) > 1 {
		sort.Slice(samples, func(i, j int) bool {
			return samples[i].Timestamp.Before(samples[j].Timestamp)
		})
	}

	bucketDuration := end.Sub(start) / time.Duration(points)
	if bucketDuration <= 0 {
		bucketDuration = time.Minute
	}

	cursor := 0
	for i := 0; i < points; i++ {
		bucketStart := start.Add(time.Duration(i) * bucketDuration)
		bucketEnd := bucketStart.Add(bucketDuration)
		if i == points-1 {
			bucketEnd = end
		}
		bucketSamples, nextCursor := collectBucketSamples(samples, bucketStart, bucketEnd, cursor)
		cursor = nextCursor
		state, label, details := evaluateBucket(bucketSamples)
		output = append(output, models.TimelinePoint{
			State:   state,
			Label:   label,
			Start:   bucketStart,
			End:     bucketEnd,
			Details: details,
		})
	}
	return output
}

func collectBucketSamples(samples []sample, start, end time.Time, cursor int) ([]sample, int) {
	total := len(samples)
	if total == 0 || cursor >= total {
		return nil, cursor
	}

	i := cursor
	for i < total && samples[i].Timestamp.Before(start) {
		i++
	}
	j := i
	for j < total && samples[j].Timestamp.Before(end) {
		j++
	}
	if i >= j {
		return nil, j
	}
	chunk := make([]sample, j-i)
	copy(chunk, samples[i:j])
	return chunk, j
}

func evaluateBucket(entries []sample) (state models.BucketState, label string, details []models.TimelineDetail) {
	if len(entries) == 0 {
		return models.BucketMissing, "No data", nil
	}

	failing := 0
	for _, entry := range entries {
		if entry.State != models.HealthHealthy {
			failing++
			if len(details) < maxDetailsPerPoint {
				details = append(details, models.TimelineDetail{
					Timestamp: entry.Timestamp,
					Health:    entry.State,
					Error:     entry.Error,
				})
			}
		}
	}

	switch {
	case failing == 0:
		return models.BucketOK, "Online", nil
	case failing == len(entries):
		return models.BucketIssue, "Offline", details
	default:
		return models.BucketPartial, fmt.Sprintf("%d/%d checks failed", failing, len(entries)), details
	}
}
