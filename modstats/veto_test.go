package modstats

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sievebot/sieve/models"
)

func TestDetectVetoesBasic(t *testing.T) {
	assert := assert.New(t)

	// URLCheck says spam, the high-trust check says clean, aggregate is clean
	evt := models.DetectionEvent{
		ID: 1, MessageID: 42, DetectedAt: mustUTC(t, "2024-01-01T10:00:00Z"),
		DetectionSource: models.SourceAutomated, NetConfidence: -20,
		CheckResults: checksJSON(t, []models.CheckResult{
			{Name: "URLCheck", Result: models.CheckResultSpam, Confidence: 70},
			{Name: "OpenAI", Result: models.CheckResultClean, Confidence: 95, Reason: "benign link"},
		}),
	}

	report := DetectVetoes([]models.DetectionEvent{evt}, "OpenAI", slog.Default())
	assert.Equal(1, report.TotalDetections)
	assert.Equal(1, report.VetoedCount)
	assert.Equal(100.0, report.OverallVetoRate)

	assert.Len(report.PerAlgorithm, 1)
	assert.Equal("URLCheck", report.PerAlgorithm[0].Name)
	assert.Equal(1, report.PerAlgorithm[0].SpamVotes)
	assert.Equal(1, report.PerAlgorithm[0].VetoedCount)
	assert.Equal(100.0, report.PerAlgorithm[0].VetoRate)

	assert.Len(report.RecentVetoes, 1)
	v := report.RecentVetoes[0]
	assert.Equal(uint64(42), v.MessageID)
	assert.Equal([]string{"URLCheck"}, v.SpamVoters)
	assert.Equal(95.0, v.VetoConfidence)
	assert.Equal("benign link", v.VetoReason)
}

func TestDetectVetoesRequiresAllConditions(t *testing.T) {
	assert := assert.New(t)
	logger := slog.Default()

	// aggregate spam: the high-trust clean vote did not prevail
	aggregateSpam := models.DetectionEvent{
		ID: 1, MessageID: 1, DetectionSource: models.SourceAutomated, NetConfidence: 30,
		CheckResults: checksJSON(t, []models.CheckResult{
			{Name: "Bayes", Result: models.CheckResultSpam, Confidence: 80},
			{Name: "OpenAI", Result: models.CheckResultClean, Confidence: 60},
		}),
	}
	// no other spam voter: nothing was overridden
	noSpamVoters := models.DetectionEvent{
		ID: 2, MessageID: 2, DetectionSource: models.SourceAutomated, NetConfidence: -50,
		CheckResults: checksJSON(t, []models.CheckResult{
			{Name: "Bayes", Result: models.CheckResultClean, Confidence: 10},
			{Name: "OpenAI", Result: models.CheckResultClean, Confidence: 90},
		}),
	}
	// high-trust check absent from the payload
	noHighTrust := models.DetectionEvent{
		ID: 3, MessageID: 3, DetectionSource: models.SourceAutomated, NetConfidence: -10,
		CheckResults: checksJSON(t, []models.CheckResult{
			{Name: "Bayes", Result: models.CheckResultSpam, Confidence: 40},
		}),
	}

	report := DetectVetoes([]models.DetectionEvent{aggregateSpam, noSpamVoters, noHighTrust}, "OpenAI", logger)
	assert.Equal(3, report.TotalDetections)
	assert.Equal(0, report.VetoedCount)
	assert.Empty(report.RecentVetoes)
}

func TestDetectVetoesDenominatorIsAllSpamVotes(t *testing.T) {
	assert := assert.New(t)

	// URLCheck votes spam on 10 events; only 3 of them are vetoed. The rate
	// must come out at 30, not 100.
	var evts []models.DetectionEvent
	for i := 0; i < 10; i++ {
		vetoed := i < 3
		net := 40
		checks := []models.CheckResult{
			{Name: "URLCheck", Result: models.CheckResultSpam, Confidence: 70},
		}
		if vetoed {
			net = -20
			checks = append(checks, models.CheckResult{Name: "OpenAI", Result: models.CheckResultClean, Confidence: 90})
		}
		evts = append(evts, models.DetectionEvent{
			ID: uint64(i + 1), MessageID: uint64(i + 1),
			DetectedAt:      mustUTC(t, "2024-01-01T10:00:00Z").Add(time.Duration(i) * time.Minute),
			DetectionSource: models.SourceAutomated, NetConfidence: net,
			CheckResults: checksJSON(t, checks),
		})
	}

	report := DetectVetoes(evts, "OpenAI", slog.Default())
	assert.Equal(3, report.VetoedCount)
	assert.Len(report.PerAlgorithm, 1)
	assert.Equal(10, report.PerAlgorithm[0].SpamVotes)
	assert.Equal(3, report.PerAlgorithm[0].VetoedCount)
	assert.Equal(30.0, report.PerAlgorithm[0].VetoRate)
}

func TestDetectVetoesRecentOrdering(t *testing.T) {
	assert := assert.New(t)

	mk := func(id uint64, at string) models.DetectionEvent {
		return models.DetectionEvent{
			ID: id, MessageID: id, DetectedAt: mustUTC(t, at),
			DetectionSource: models.SourceAutomated, NetConfidence: -10,
			CheckResults: checksJSON(t, []models.CheckResult{
				{Name: "Bayes", Result: models.CheckResultSpam, Confidence: 50},
				{Name: "OpenAI", Result: models.CheckResultClean, Confidence: 80},
			}),
		}
	}
	evts := []models.DetectionEvent{
		mk(1, "2024-01-01T09:00:00Z"),
		mk(2, "2024-01-01T11:00:00Z"),
		mk(3, "2024-01-01T10:00:00Z"),
	}

	report := DetectVetoes(evts, "OpenAI", slog.Default())
	assert.Len(report.RecentVetoes, 3)
	assert.Equal(uint64(2), report.RecentVetoes[0].EventID)
	assert.Equal(uint64(3), report.RecentVetoes[1].EventID)
	assert.Equal(uint64(1), report.RecentVetoes[2].EventID)
}

func TestTruncatePreview(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("short", TruncatePreview("short", 10))
	long := strings.Repeat("ab", 60)
	got := TruncatePreview(long, MessagePreviewLimit)
	assert.Equal(long[:MessagePreviewLimit]+"…", got)

	// multi-byte runes are counted as characters, not bytes
	jp := strings.Repeat("あ", 105)
	got = TruncatePreview(jp, MessagePreviewLimit)
	assert.Equal([]rune(jp)[:MessagePreviewLimit], []rune(strings.TrimSuffix(got, "…")))
}
