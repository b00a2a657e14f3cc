package modstats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sievebot/sieve/models"
)

func mustUTC(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestInferCorrectionsBasicFalsePositive(t *testing.T) {
	assert := assert.New(t)

	// Bayes calls message 42 spam, a moderator overturns it five minutes later
	auto := models.DetectionEvent{
		ID:              1,
		MessageID:       42,
		DetectedAt:      mustUTC(t, "2024-01-01T10:00:00Z"),
		DetectionSource: models.SourceAutomated,
		DetectionMethod: "multi-check",
		NetConfidence:   90,
	}
	manual := models.DetectionEvent{
		ID:              2,
		MessageID:       42,
		DetectedAt:      mustUTC(t, "2024-01-01T10:05:00Z"),
		DetectionSource: models.SourceManual,
		NetConfidence:   -100,
	}

	cs := InferCorrections([]models.DetectionEvent{auto}, []models.DetectionEvent{manual})
	assert.Len(cs.FalsePositives, 1)
	assert.Empty(cs.FalseNegatives)
	assert.Equal(1, cs.TotalAutomated)
	assert.Equal(uint64(1), cs.FalsePositives[0].Original.ID)
	assert.Equal(uint64(2), cs.FalsePositives[0].Correcting.ID)

	report := BuildAccuracyReport([]models.DetectionEvent{auto}, cs, time.UTC)
	assert.Equal(1, report.TotalFalsePositives)
	assert.Equal(0, report.TotalFalseNegatives)
	assert.Equal(1, report.TotalDetections)
	assert.Equal(100.0, report.FalsePositiveRate)
	assert.Len(report.DailyBreakdown, 1)
	assert.Equal("2024-01-01", report.DailyBreakdown[0].Date)
	assert.Equal(1, report.DailyBreakdown[0].FalsePositives)
	assert.Equal(0.0, report.DailyBreakdown[0].Accuracy)
}

func TestInferCorrectionsFalseNegativeSymmetry(t *testing.T) {
	assert := assert.New(t)

	auto := models.DetectionEvent{
		ID:              1,
		MessageID:       7,
		DetectedAt:      mustUTC(t, "2024-01-01T10:00:00Z"),
		DetectionSource: models.SourceAutomated,
		NetConfidence:   -30,
	}
	manual := models.DetectionEvent{
		ID:              2,
		MessageID:       7,
		DetectedAt:      mustUTC(t, "2024-01-01T11:00:00Z"),
		DetectionSource: models.SourceManual,
		NetConfidence:   100,
	}

	cs := InferCorrections([]models.DetectionEvent{auto}, []models.DetectionEvent{manual})
	assert.Empty(cs.FalsePositives)
	assert.Len(cs.FalseNegatives, 1)
}

func TestInferCorrectionsMultiplicity(t *testing.T) {
	assert := assert.New(t)

	// two independent automated spam verdicts on the same message, both
	// overturned by the single later manual ham verdict
	evts := []models.DetectionEvent{
		{ID: 1, MessageID: 5, DetectedAt: mustUTC(t, "2024-01-01T09:00:00Z"), DetectionSource: models.SourceAutomated, NetConfidence: 80},
		{ID: 2, MessageID: 5, DetectedAt: mustUTC(t, "2024-01-01T09:30:00Z"), DetectionSource: models.SourceAutomated, NetConfidence: 60},
	}
	manual := models.DetectionEvent{
		ID: 3, MessageID: 5, DetectedAt: mustUTC(t, "2024-01-01T10:00:00Z"),
		DetectionSource: models.SourceManual, NetConfidence: -100,
	}

	cs := InferCorrections(evts, []models.DetectionEvent{manual})
	assert.Len(cs.FalsePositives, 2)
	assert.Equal(2, cs.TotalAutomated)
}

func TestInferCorrectionsIgnoresEarlierAndAgreeingManuals(t *testing.T) {
	assert := assert.New(t)

	auto := models.DetectionEvent{
		ID: 1, MessageID: 9, DetectedAt: mustUTC(t, "2024-01-01T10:00:00Z"),
		DetectionSource: models.SourceAutomated, NetConfidence: 50,
	}
	manuals := []models.DetectionEvent{
		// earlier manual ham: not a correction of a verdict it predates
		{ID: 2, MessageID: 9, DetectedAt: mustUTC(t, "2024-01-01T09:00:00Z"), DetectionSource: models.SourceManual, NetConfidence: -100},
		// later manual spam: agrees, confirms rather than corrects
		{ID: 3, MessageID: 9, DetectedAt: mustUTC(t, "2024-01-01T11:00:00Z"), DetectionSource: models.SourceManual, NetConfidence: 100},
	}

	cs := InferCorrections([]models.DetectionEvent{auto}, manuals)
	assert.Empty(cs.FalsePositives)
	assert.Empty(cs.FalseNegatives)
	assert.Equal(1, cs.TotalAutomated)
}

func TestInferCorrectionsPairsFirstLaterOpposite(t *testing.T) {
	assert := assert.New(t)

	auto := models.DetectionEvent{
		ID: 1, MessageID: 3, DetectedAt: mustUTC(t, "2024-01-01T10:00:00Z"),
		DetectionSource: models.SourceAutomated, NetConfidence: 70,
	}
	manuals := []models.DetectionEvent{
		{ID: 2, MessageID: 3, DetectedAt: mustUTC(t, "2024-01-01T10:10:00Z"), DetectionSource: models.SourceManual, NetConfidence: -100},
		{ID: 3, MessageID: 3, DetectedAt: mustUTC(t, "2024-01-01T10:20:00Z"), DetectionSource: models.SourceManual, NetConfidence: -100},
	}

	cs := InferCorrections([]models.DetectionEvent{auto}, manuals)
	assert.Len(cs.FalsePositives, 1)
	assert.Equal(uint64(2), cs.FalsePositives[0].Correcting.ID)
}

func TestBuildAccuracyReportZeroDenominator(t *testing.T) {
	assert := assert.New(t)

	cs := InferCorrections(nil, nil)
	report := BuildAccuracyReport(nil, cs, time.UTC)
	assert.Equal(0, report.TotalDetections)
	assert.Equal(0.0, report.FalsePositiveRate)
	assert.Equal(0.0, report.FalseNegativeRate)
	assert.Empty(report.DailyBreakdown)
}

func TestBuildAccuracyReportBucketsByLocalDay(t *testing.T) {
	assert := assert.New(t)

	loc, err := ResolveZone("Asia/Tokyo")
	assert.NoError(err)

	// 23:30 UTC is already the next calendar day in Tokyo
	auto := models.DetectionEvent{
		ID: 1, MessageID: 1, DetectedAt: mustUTC(t, "2024-01-01T23:30:00Z"),
		DetectionSource: models.SourceAutomated, NetConfidence: 10,
	}
	cs := InferCorrections([]models.DetectionEvent{auto}, nil)
	report := BuildAccuracyReport([]models.DetectionEvent{auto}, cs, loc)
	assert.Len(report.DailyBreakdown, 1)
	assert.Equal("2024-01-02", report.DailyBreakdown[0].Date)
	assert.Equal(1.0, report.DailyBreakdown[0].Accuracy)
}
