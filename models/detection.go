package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	SourceAutomated = "automated"
	SourceManual    = "manual"
)

// DetectionEvent is one row of the append-only classification log: a single
// spam/ham verdict for a message, from either the automated pipeline or a
// moderator. Rows are never edited once written; the only permitted mutation
// is flipping UsedForTraining off when a message is reclassified. A re-scored
// message gets a new event with a bumped EditVersion, not an update.
type DetectionEvent struct {
	ID              uint64    `gorm:"primaryKey" json:"id"`
	MessageID       uint64    `gorm:"index;not null" json:"messageId"`
	DetectedAt      time.Time `gorm:"index;not null" json:"detectedAt"`
	DetectionSource string    `gorm:"not null" json:"detectionSource"`
	DetectionMethod string    `json:"detectionMethod,omitempty"`
	// signed score in [-100, 100]; sign is the verdict, magnitude the certainty
	NetConfidence   int    `gorm:"not null" json:"netConfidence"`
	Reason          string `json:"reason,omitempty"`
	AddedBy         Actor  `gorm:"type:text" json:"addedBy"`
	UsedForTraining bool   `json:"usedForTraining"`
	// JSON-encoded array of CheckResult, parsed on read
	CheckResults string `gorm:"type:text" json:"checkResults,omitempty"`
	EditVersion  int    `json:"editVersion"`
}

// IsSpam is derived from the sign of NetConfidence and never stored
// independently.
func (e *DetectionEvent) IsSpam() bool {
	return e.NetConfidence > 0
}

// Automated reports whether this event counts toward automated-detection
// totals. Anything that is not an explicit manual verdict does.
func (e *DetectionEvent) Automated() bool {
	return e.DetectionSource != SourceManual
}

const (
	CheckResultSpam  = "spam"
	CheckResultClean = "clean"
)

// CheckResult is one independent detector's vote inside an automated event's
// multi-check payload.
type CheckResult struct {
	Name       string  `json:"name"`
	Result     string  `json:"result"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

func (cr *CheckResult) Spam() bool {
	return cr.Result == CheckResultSpam
}

// ParseCheckResults decodes and validates a multi-check payload. Callers get
// a typed list or an error; there is no silent default for malformed entries,
// the whole payload is rejected so the event can be skipped for attribution.
func ParseCheckResults(raw string) ([]CheckResult, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty check results payload")
	}
	var out []CheckResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decoding check results: %w", err)
	}
	for i, cr := range out {
		if cr.Name == "" {
			return nil, fmt.Errorf("check result %d has no name", i)
		}
		if cr.Result != CheckResultSpam && cr.Result != CheckResultClean {
			return nil, fmt.Errorf("check result %q has invalid result %q", cr.Name, cr.Result)
		}
	}
	return out, nil
}

// EncodeCheckResults is the write-side counterpart of ParseCheckResults.
func EncodeCheckResults(results []CheckResult) (string, error) {
	b, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
