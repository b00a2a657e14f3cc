package modstats

import (
	"time"

	"github.com/sievebot/sieve/models"
)

// Correction pairs an automated verdict with the later manual verdict of
// opposite polarity that overturned it. If the original verdict was spam the
// correction is a false positive; if it was ham, a false negative.
type Correction struct {
	Original   models.DetectionEvent
	Correcting models.DetectionEvent
}

func (c *Correction) FalsePositive() bool {
	return c.Original.IsSpam()
}

// CorrectionSet is the output of correction inference over one window.
type CorrectionSet struct {
	FalsePositives []Correction
	FalseNegatives []Correction
	// automated events in the window, corrected or not
	TotalAutomated int
}

// FalsePositiveMessageIDs keys the false-positive set by message id. Blame
// is attributed per message, not per corrected event: a check that voted spam
// in any automated event on an overturned message shares responsibility, even
// when that particular event was not the one corrected.
func (cs *CorrectionSet) FalsePositiveMessageIDs() map[uint64]bool {
	out := make(map[uint64]bool, len(cs.FalsePositives))
	for _, c := range cs.FalsePositives {
		out[c.Original.MessageID] = true
	}
	return out
}

func (cs *CorrectionSet) FalseNegativeMessageIDs() map[uint64]bool {
	out := make(map[uint64]bool, len(cs.FalseNegatives))
	for _, c := range cs.FalseNegatives {
		out[c.Original.MessageID] = true
	}
	return out
}

// InferCorrections scans automated verdicts from the window and pairs each
// with the first strictly-later manual verdict of opposite polarity on the
// same message. Every prior opposite automated verdict counts independently:
// a message is corrected relative to each of them, not just the most recent
// one. manualEvents may extend beyond the window; only events that are
// actually manual are considered as correctors.
//
// windowEvents is expected in (DetectedAt, ID) order, as the stores return
// it; output ordering follows input ordering, keeping the whole computation
// deterministic.
func InferCorrections(windowEvents, manualEvents []models.DetectionEvent) CorrectionSet {
	manualByMsg := make(map[uint64][]models.DetectionEvent)
	for _, evt := range manualEvents {
		if evt.DetectionSource != models.SourceManual {
			continue
		}
		manualByMsg[evt.MessageID] = append(manualByMsg[evt.MessageID], evt)
	}

	var cs CorrectionSet
	for _, evt := range windowEvents {
		if !evt.Automated() {
			continue
		}
		cs.TotalAutomated++
		for _, m := range manualByMsg[evt.MessageID] {
			if !m.DetectedAt.After(evt.DetectedAt) {
				continue
			}
			if m.IsSpam() == evt.IsSpam() {
				continue
			}
			c := Correction{Original: evt, Correcting: m}
			if c.FalsePositive() {
				cs.FalsePositives = append(cs.FalsePositives, c)
			} else {
				cs.FalseNegatives = append(cs.FalseNegatives, c)
			}
			break
		}
	}
	return cs
}

// DailyAccuracy is one local-calendar-day bucket of the accuracy report.
type DailyAccuracy struct {
	Date            string  `json:"date"`
	TotalDetections int     `json:"totalDetections"`
	FalsePositives  int     `json:"falsePositives"`
	FalseNegatives  int     `json:"falseNegatives"`
	Accuracy        float64 `json:"accuracy"`
}

type AccuracyReport struct {
	DailyBreakdown      []DailyAccuracy `json:"dailyBreakdown"`
	TotalFalsePositives int             `json:"totalFalsePositives"`
	TotalFalseNegatives int             `json:"totalFalseNegatives"`
	TotalDetections     int             `json:"totalDetections"`
	// percentages in [0, 100]; zero when there were no detections
	FalsePositiveRate float64 `json:"fpRate"`
	FalseNegativeRate float64 `json:"fnRate"`
}

// BuildAccuracyReport buckets the correction set and the automated detection
// totals by the local calendar date of the original verdict.
func BuildAccuracyReport(windowEvents []models.DetectionEvent, cs CorrectionSet, loc *time.Location) *AccuracyReport {
	days := make(map[string]*DailyAccuracy)
	bucket := func(t time.Time) *DailyAccuracy {
		d := LocalDay(t, loc)
		b, ok := days[d]
		if !ok {
			b = &DailyAccuracy{Date: d}
			days[d] = b
		}
		return b
	}

	for _, evt := range windowEvents {
		if evt.Automated() {
			bucket(evt.DetectedAt).TotalDetections++
		}
	}
	for _, c := range cs.FalsePositives {
		bucket(c.Original.DetectedAt).FalsePositives++
	}
	for _, c := range cs.FalseNegatives {
		bucket(c.Original.DetectedAt).FalseNegatives++
	}

	report := &AccuracyReport{
		DailyBreakdown:      []DailyAccuracy{},
		TotalFalsePositives: len(cs.FalsePositives),
		TotalFalseNegatives: len(cs.FalseNegatives),
		TotalDetections:     cs.TotalAutomated,
	}
	if cs.TotalAutomated > 0 {
		report.FalsePositiveRate = float64(len(cs.FalsePositives)) / float64(cs.TotalAutomated) * 100
		report.FalseNegativeRate = float64(len(cs.FalseNegatives)) / float64(cs.TotalAutomated) * 100
	}
	for _, d := range sortedDays(days) {
		b := days[d]
		if b.TotalDetections > 0 {
			b.Accuracy = 1 - float64(b.FalsePositives+b.FalseNegatives)/float64(b.TotalDetections)
		}
		report.DailyBreakdown = append(report.DailyBreakdown, *b)
	}
	return report
}
