package modstats

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sievebot/sieve/models"
	"github.com/sievebot/sieve/modstats/actionstore"
	"github.com/sievebot/sieve/modstats/eventstore"
	"github.com/sievebot/sieve/modstats/reportcache"
)

func testEngine(t *testing.T) (*Engine, *eventstore.MemEventStore, *actionstore.MemActionStore) {
	t.Helper()
	events := eventstore.NewMemEventStore()
	actions := actionstore.NewMemActionStore()
	eng := &Engine{
		Logger:         slog.Default(),
		Events:         events,
		Actions:        actions,
		HighTrustCheck: "OpenAI",
	}
	return eng, events, actions
}

func seedScenario(t *testing.T, events *eventstore.MemEventStore, actions *actionstore.MemActionStore) {
	t.Helper()
	ctx := context.Background()

	// spam verdict on message 42, overturned manually, then a ban anyway on
	// message 43 which stays spam
	add := func(evt models.DetectionEvent) {
		if err := events.AddEvent(ctx, &evt); err != nil {
			t.Fatal(err)
		}
	}
	add(models.DetectionEvent{
		MessageID: 42, DetectedAt: mustUTC(t, "2024-01-01T10:00:00Z"),
		DetectionSource: models.SourceAutomated, NetConfidence: 90,
		AddedBy: models.SystemActor("detector"),
		CheckResults: checksJSON(t, []models.CheckResult{
			{Name: "Bayes", Result: models.CheckResultSpam, Confidence: 90},
			{Name: "OpenAI", Result: models.CheckResultSpam, Confidence: 70},
		}),
	})
	add(models.DetectionEvent{
		MessageID: 42, DetectedAt: mustUTC(t, "2024-01-01T10:05:00Z"),
		DetectionSource: models.SourceManual, NetConfidence: -100,
		AddedBy: models.WebUserActor(1),
	})
	add(models.DetectionEvent{
		MessageID: 43, DetectedAt: mustUTC(t, "2024-01-01T12:00:00Z"),
		DetectionSource: models.SourceAutomated, NetConfidence: 80,
		AddedBy: models.SystemActor("detector"),
		CheckResults: checksJSON(t, []models.CheckResult{
			{Name: "Bayes", Result: models.CheckResultSpam, Confidence: 80},
			{Name: "OpenAI", Result: models.CheckResultSpam, Confidence: 85},
		}),
	})
	// vetoed event: Bayes overridden by the high-trust check
	add(models.DetectionEvent{
		MessageID: 44, DetectedAt: mustUTC(t, "2024-01-01T13:00:00Z"),
		DetectionSource: models.SourceAutomated, NetConfidence: -15,
		AddedBy: models.SystemActor("detector"),
		CheckResults: checksJSON(t, []models.CheckResult{
			{Name: "Bayes", Result: models.CheckResultSpam, Confidence: 55},
			{Name: "OpenAI", Result: models.CheckResultClean, Confidence: 92, Reason: "greeting"},
		}),
	})

	if err := events.PutMessage(ctx, &models.Message{ID: 44, ChatID: 1, UserID: 5, Text: "hello there"}); err != nil {
		t.Fatal(err)
	}

	msg43 := uint64(43)
	if err := actions.AddAction(ctx, &models.ModerationAction{
		UserID: 5, Action: models.ActionBan, MessageID: &msg43,
		IssuedBy: models.WebUserActor(1),
		IssuedAt: mustUTC(t, "2024-01-01T12:03:00Z"),
	}); err != nil {
		t.Fatal(err)
	}
}

func testWindow(t *testing.T) Window {
	t.Helper()
	w, err := NewWindow(mustUTC(t, "2024-01-01T00:00:00Z"), mustUTC(t, "2024-01-02T00:00:00Z"))
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func TestEngineFullReport(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, events, actions := testEngine(t)
	seedScenario(t, events, actions)

	report, err := eng.FullReport(ctx, testWindow(t), "UTC")
	assert.NoError(err)

	assert.Equal(1, report.Accuracy.TotalFalsePositives)
	assert.Equal(3, report.Accuracy.TotalDetections)

	assert.Equal(1, report.ResponseTimes.TotalActions)
	assert.Equal(int64(3*60*1000), report.ResponseTimes.MedianMs)

	assert.Len(report.Algorithms, 2)

	assert.Equal(1, report.Vetoes.VetoedCount)
	assert.Len(report.Vetoes.RecentVetoes, 1)
	assert.Equal("hello there", report.Vetoes.RecentVetoes[0].MessagePreview)
}

func TestEngineDeterministic(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, events, actions := testEngine(t)
	seedScenario(t, events, actions)
	w := testWindow(t)

	first, err := eng.FullReport(ctx, w, "UTC")
	assert.NoError(err)
	second, err := eng.FullReport(ctx, w, "UTC")
	assert.NoError(err)

	b1, err := json.Marshal(first)
	assert.NoError(err)
	b2, err := json.Marshal(second)
	assert.NoError(err)
	assert.Equal(string(b1), string(b2))
}

func TestEngineRejectsBadInput(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, _, _ := testEngine(t)
	w := testWindow(t)

	_, err := eng.Accuracy(ctx, w, "Nowhere/Fake")
	assert.Error(err)
	_, err = eng.FullReport(ctx, w, "")
	assert.Error(err)
	_, err = eng.Accuracy(ctx, Window{Start: w.End, End: w.Start}, "UTC")
	assert.Error(err)

	eng.HighTrustCheck = ""
	_, err = eng.Vetoes(ctx, w)
	assert.Error(err)
}

func TestEngineVetoLimitAndMissingMessage(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, events, _ := testEngine(t)
	eng.RecentVetoLimit = 2

	for i := 0; i < 5; i++ {
		evt := models.DetectionEvent{
			MessageID:       uint64(100 + i),
			DetectedAt:      mustUTC(t, "2024-01-01T10:00:00Z").Add(time.Duration(i) * time.Minute),
			DetectionSource: models.SourceAutomated,
			NetConfidence:   -10,
			CheckResults: checksJSON(t, []models.CheckResult{
				{Name: "Bayes", Result: models.CheckResultSpam, Confidence: 50},
				{Name: "OpenAI", Result: models.CheckResultClean, Confidence: 80},
			}),
		}
		if err := events.AddEvent(ctx, &evt); err != nil {
			t.Fatal(err)
		}
	}

	report, err := eng.Vetoes(ctx, testWindow(t))
	assert.NoError(err)
	assert.Equal(5, report.VetoedCount)
	assert.Len(report.RecentVetoes, 2)
	// most recent first, messages long gone leave previews empty
	assert.Equal(uint64(104), report.RecentVetoes[0].MessageID)
	assert.Empty(report.RecentVetoes[0].MessagePreview)
}

func TestEngineResponseTimesJoinsLateActions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, events, actions := testEngine(t)
	evt := models.DetectionEvent{
		MessageID: 42, DetectedAt: mustUTC(t, "2024-01-01T10:00:00Z"),
		DetectionSource: models.SourceAutomated, NetConfidence: 90,
	}
	assert.NoError(events.AddEvent(ctx, &evt))

	// the ban lands months after the window closes and still joins
	msg := uint64(42)
	assert.NoError(actions.AddAction(ctx, &models.ModerationAction{
		UserID: 1, Action: models.ActionBan, MessageID: &msg,
		IssuedBy: models.WebUserActor(1),
		IssuedAt: mustUTC(t, "2024-06-01T10:00:00Z"),
	}))

	report, err := eng.ResponseTimes(ctx, testWindow(t), "UTC")
	assert.NoError(err)
	assert.Equal(1, report.TotalActions)
}

func TestEngineFullReportCached(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, events, actions := testEngine(t)
	seedScenario(t, events, actions)
	eng.Cache = reportcache.NewMemCacheStore(100, time.Minute)
	w := testWindow(t)

	first, err := eng.FullReport(ctx, w, "UTC")
	assert.NoError(err)

	// mutate the log after the report is published; the cached report for the
	// same (window, zone) must still be served
	evt := models.DetectionEvent{
		MessageID: 999, DetectedAt: mustUTC(t, "2024-01-01T15:00:00Z"),
		DetectionSource: models.SourceAutomated, NetConfidence: 5,
		CheckResults: checksJSON(t, []models.CheckResult{{Name: "Bayes", Result: models.CheckResultSpam, Confidence: 5}}),
	}
	assert.NoError(events.AddEvent(ctx, &evt))

	second, err := eng.FullReport(ctx, w, "UTC")
	assert.NoError(err)
	assert.Equal(first.Accuracy.TotalDetections, second.Accuracy.TotalDetections)

	// a different zone is a different cache entry
	third, err := eng.FullReport(ctx, w, "Asia/Tokyo")
	assert.NoError(err)
	assert.Equal(4, third.Accuracy.TotalDetections)
}
