package modstats

import (
	"log/slog"
	"sort"

	"github.com/sievebot/sieve/models"
)

// AlgorithmStats is the per-check attribution record: how often a named check
// voted, how spammy its votes were, and its share of responsibility for
// inferred false positives and negatives.
type AlgorithmStats struct {
	Name           string  `json:"name"`
	TotalChecks    int     `json:"totalChecks"`
	SpamVotes      int     `json:"spamVotes"`
	SpamPercentage float64 `json:"spamPercentage"`
	// nil when the check never voted spam; an average over zero votes is
	// undefined, not zero
	AvgSpamConfidence           *float64 `json:"avgConfidence,omitempty"`
	ContributedToFalsePositives int      `json:"contributedToFP"`
	ContributedToFalseNegatives int      `json:"contributedToFN"`
}

// CompareAlgorithms tallies every named check's votes across the window's
// automated events, charging a check with a false positive when it voted spam
// on a message later overturned to ham, and with a false negative when it
// voted clean on a message later overturned to spam. The charge is keyed by
// message, so spam votes in sibling events on the same overturned message
// count too.
//
// Events with a malformed or absent multi-check payload are skipped for
// attribution (the log is append-only and cannot be fixed retroactively) but
// still count in the window's detection totals elsewhere.
//
// Output is sorted by TotalChecks descending (most-exercised check first),
// name ascending on ties.
func CompareAlgorithms(windowEvents []models.DetectionEvent, cs CorrectionSet, logger *slog.Logger) []AlgorithmStats {
	type tally struct {
		stats       AlgorithmStats
		confidences []float64
	}
	byName := make(map[string]*tally)
	fpMsgs := cs.FalsePositiveMessageIDs()
	fnMsgs := cs.FalseNegativeMessageIDs()

	for _, evt := range windowEvents {
		if !evt.Automated() {
			continue
		}
		checks, err := models.ParseCheckResults(evt.CheckResults)
		if err != nil {
			logger.Debug("skipping event with unparseable check results", "event", evt.ID, "err", err)
			continue
		}
		for _, cr := range checks {
			t, ok := byName[cr.Name]
			if !ok {
				t = &tally{stats: AlgorithmStats{Name: cr.Name}}
				byName[cr.Name] = t
			}
			t.stats.TotalChecks++
			if cr.Spam() {
				t.stats.SpamVotes++
				t.confidences = append(t.confidences, cr.Confidence)
				if fpMsgs[evt.MessageID] {
					t.stats.ContributedToFalsePositives++
				}
			} else {
				if fnMsgs[evt.MessageID] {
					t.stats.ContributedToFalseNegatives++
				}
			}
		}
	}

	out := make([]AlgorithmStats, 0, len(byName))
	for _, t := range byName {
		st := t.stats
		st.SpamPercentage = float64(st.SpamVotes) / float64(st.TotalChecks) * 100
		if len(t.confidences) > 0 {
			var sum float64
			for _, c := range t.confidences {
				sum += c
			}
			avg := sum / float64(len(t.confidences))
			st.AvgSpamConfidence = &avg
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalChecks != out[j].TotalChecks {
			return out[i].TotalChecks > out[j].TotalChecks
		}
		return out[i].Name < out[j].Name
	})
	return out
}
