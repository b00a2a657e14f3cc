package modstats

import (
	"log/slog"
	"sort"
	"time"

	"github.com/sievebot/sieve/models"
)

// MessagePreviewLimit is the character budget for vetoed-message previews in
// the audit view.
const MessagePreviewLimit = 100

// VetoInstance is one event where the designated high-trust check said clean,
// at least one other check said spam, and the aggregate verdict was clean:
// the high-trust check overrode the others.
type VetoInstance struct {
	EventID        uint64    `json:"eventId"`
	MessageID      uint64    `json:"messageId"`
	DetectedAt     time.Time `json:"detectedAt"`
	MessagePreview string    `json:"messagePreview,omitempty"`
	// checks whose spam votes were overridden
	SpamVoters     []string `json:"spamVoters"`
	VetoConfidence float64  `json:"vetoConfidence"`
	VetoReason     string   `json:"vetoReason,omitempty"`
}

// AlgorithmVetoRate reports how often a check's spam votes were overridden.
// The denominator is every spam vote the check cast in the window, vetoed or
// not; counting only vetoed votes would make the rate meaningless.
type AlgorithmVetoRate struct {
	Name        string  `json:"name"`
	SpamVotes   int     `json:"spamVotes"`
	VetoedCount int     `json:"vetoedCount"`
	VetoRate    float64 `json:"vetoRate"`
}

type VetoReport struct {
	TotalDetections int                 `json:"totalDetections"`
	VetoedCount     int                 `json:"vetoedCount"`
	OverallVetoRate float64             `json:"overallVetoRate"`
	PerAlgorithm    []AlgorithmVetoRate `json:"perAlgorithm"`
	RecentVetoes    []VetoInstance      `json:"recentVetoes"`
}

// DetectVetoes scans the window's automated events for veto instances by the
// named high-trust check. Message previews are left empty; the engine fills
// them in for the bounded recent view, tolerating deleted messages.
func DetectVetoes(windowEvents []models.DetectionEvent, highTrustCheck string, logger *slog.Logger) *VetoReport {
	report := &VetoReport{
		PerAlgorithm: []AlgorithmVetoRate{},
		RecentVetoes: []VetoInstance{},
	}
	spamVotes := make(map[string]int)
	vetoed := make(map[string]int)

	for _, evt := range windowEvents {
		if !evt.Automated() {
			continue
		}
		report.TotalDetections++
		checks, err := models.ParseCheckResults(evt.CheckResults)
		if err != nil {
			logger.Debug("skipping event with unparseable check results", "event", evt.ID, "err", err)
			continue
		}
		var highTrust *models.CheckResult
		var spamVoters []string
		for i := range checks {
			cr := checks[i]
			if cr.Spam() {
				spamVotes[cr.Name]++
				if cr.Name != highTrustCheck {
					spamVoters = append(spamVoters, cr.Name)
				}
			}
			if cr.Name == highTrustCheck {
				highTrust = &checks[i]
			}
		}
		if evt.IsSpam() || highTrust == nil || highTrust.Spam() || len(spamVoters) == 0 {
			continue
		}
		report.VetoedCount++
		for _, name := range spamVoters {
			vetoed[name]++
		}
		report.RecentVetoes = append(report.RecentVetoes, VetoInstance{
			EventID:        evt.ID,
			MessageID:      evt.MessageID,
			DetectedAt:     evt.DetectedAt,
			SpamVoters:     spamVoters,
			VetoConfidence: highTrust.Confidence,
			VetoReason:     highTrust.Reason,
		})
	}

	if report.TotalDetections > 0 {
		report.OverallVetoRate = float64(report.VetoedCount) / float64(report.TotalDetections) * 100
	}
	for name, votes := range spamVotes {
		if name == highTrustCheck {
			continue
		}
		r := AlgorithmVetoRate{
			Name:        name,
			SpamVotes:   votes,
			VetoedCount: vetoed[name],
		}
		r.VetoRate = float64(r.VetoedCount) / float64(r.SpamVotes) * 100
		report.PerAlgorithm = append(report.PerAlgorithm, r)
	}
	sort.Slice(report.PerAlgorithm, func(i, j int) bool {
		if report.PerAlgorithm[i].VetoedCount != report.PerAlgorithm[j].VetoedCount {
			return report.PerAlgorithm[i].VetoedCount > report.PerAlgorithm[j].VetoedCount
		}
		return report.PerAlgorithm[i].Name < report.PerAlgorithm[j].Name
	})
	// most recent first for the audit view
	sort.Slice(report.RecentVetoes, func(i, j int) bool {
		if !report.RecentVetoes[i].DetectedAt.Equal(report.RecentVetoes[j].DetectedAt) {
			return report.RecentVetoes[i].DetectedAt.After(report.RecentVetoes[j].DetectedAt)
		}
		return report.RecentVetoes[i].EventID > report.RecentVetoes[j].EventID
	})
	return report
}

// TruncatePreview cuts message text to the preview character budget,
// appending an ellipsis when anything was dropped.
func TruncatePreview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
