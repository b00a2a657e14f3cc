package modstats

import (
	"sort"
	"time"

	"github.com/sievebot/sieve/models"
)

// LatencySample is one (spam verdict, first moderator response) pair.
type LatencySample struct {
	MessageID   uint64
	DetectedAt  time.Time
	RespondedAt time.Time
	Ms          int64
}

type DailyLatency struct {
	Date  string  `json:"date"`
	Count int     `json:"count"`
	AvgMs float64 `json:"avgMs"`
}

type ResponseTimeReport struct {
	DailyAverages []DailyLatency `json:"dailyAverages"`
	MeanMs        float64        `json:"meanMs"`
	MedianMs      int64          `json:"medianMs"`
	P95Ms         int64          `json:"p95Ms"`
	TotalActions  int            `json:"totalActions"`
}

// JoinResponses joins each message's earliest spam-verdict automated event in
// the window to the first Ban or Warn action on that message issued at or
// after the detection. One sample per message: a single triage event must not
// be double counted across re-detections.
func JoinResponses(windowEvents []models.DetectionEvent, actions []models.ModerationAction) []LatencySample {
	detectedAt := make(map[uint64]time.Time)
	for _, evt := range windowEvents {
		if !evt.Automated() || !evt.IsSpam() {
			continue
		}
		if t, ok := detectedAt[evt.MessageID]; !ok || evt.DetectedAt.Before(t) {
			detectedAt[evt.MessageID] = evt.DetectedAt
		}
	}

	respondedAt := make(map[uint64]time.Time)
	for _, act := range actions {
		if act.Action != models.ActionBan && act.Action != models.ActionWarn {
			continue
		}
		if act.MessageID == nil {
			continue
		}
		det, ok := detectedAt[*act.MessageID]
		if !ok || act.IssuedAt.Before(det) {
			// actions predating the detection are not responses to it
			continue
		}
		if t, ok := respondedAt[*act.MessageID]; !ok || act.IssuedAt.Before(t) {
			respondedAt[*act.MessageID] = act.IssuedAt
		}
	}

	samples := make([]LatencySample, 0, len(respondedAt))
	for msgID, resp := range respondedAt {
		det := detectedAt[msgID]
		samples = append(samples, LatencySample{
			MessageID:   msgID,
			DetectedAt:  det,
			RespondedAt: resp,
			Ms:          resp.Sub(det).Milliseconds(),
		})
	}
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].DetectedAt.Equal(samples[j].DetectedAt) {
			return samples[i].MessageID < samples[j].MessageID
		}
		return samples[i].DetectedAt.Before(samples[j].DetectedAt)
	})
	return samples
}

// BuildResponseTimeReport computes the latency distribution plus a per-local-
// day breakdown keyed by the detection timestamp. An empty sample set yields
// a zero-valued report, not an error.
//
// Median is sorted[n/2], the upper middle element for even counts, not the
// statistical mean of the two middles. Historical reports were produced with
// this tie-break and changing it would silently change their values.
func BuildResponseTimeReport(samples []LatencySample, loc *time.Location) *ResponseTimeReport {
	report := &ResponseTimeReport{
		DailyAverages: []DailyLatency{},
		TotalActions:  len(samples),
	}
	if len(samples) == 0 {
		return report
	}

	ms := make([]int64, len(samples))
	var sum int64
	for i, s := range samples {
		ms[i] = s.Ms
		sum += s.Ms
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i] < ms[j] })

	report.MeanMs = float64(sum) / float64(len(ms))
	report.MedianMs = ms[len(ms)/2]
	report.P95Ms = ms[int(float64(len(ms))*0.95)]

	type bucket struct {
		count int
		sum   int64
	}
	days := make(map[string]*bucket)
	for _, s := range samples {
		d := LocalDay(s.DetectedAt, loc)
		b, ok := days[d]
		if !ok {
			b = &bucket{}
			days[d] = b
		}
		b.count++
		b.sum += s.Ms
	}
	for _, d := range sortedDays(days) {
		b := days[d]
		report.DailyAverages = append(report.DailyAverages, DailyLatency{
			Date:  d,
			Count: b.count,
			AvgMs: float64(b.sum) / float64(b.count),
		})
	}
	return report
}
