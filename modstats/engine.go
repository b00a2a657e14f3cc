package modstats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sievebot/sieve/models"
	"github.com/sievebot/sieve/modstats/actionstore"
	"github.com/sievebot/sieve/modstats/eventstore"
	"github.com/sievebot/sieve/modstats/reportcache"
)

// Engine runs the read-side analytics over the detection and action logs.
//
// TODO: careful when initializing: Logger, Events, and Actions must all be
// set; Cache is optional.
type Engine struct {
	Logger  *slog.Logger
	Events  eventstore.EventStore
	Actions actionstore.ActionStore
	// optional; when set, full reports are cached per (window, zone)
	Cache reportcache.CacheStore
	// name of the designated high-trust check whose clean verdicts can veto
	// other checks' spam votes
	HighTrustCheck string
	// bound on the recent-vetoes audit view
	RecentVetoLimit int
}

const defaultRecentVetoLimit = 20

func (e *Engine) recentVetoLimit() int {
	if e.RecentVetoLimit > 0 {
		return e.RecentVetoLimit
	}
	return defaultRecentVetoLimit
}

// inferWindow fetches the window's events and runs correction inference,
// pulling in manual verdicts on the affected messages even when those land
// after the window closes.
func (e *Engine) inferWindow(ctx context.Context, w Window) ([]models.DetectionEvent, CorrectionSet, error) {
	events, err := e.Events.ListWindow(ctx, w.Start, w.End)
	if err != nil {
		return nil, CorrectionSet{}, fmt.Errorf("listing detection events: %w", err)
	}
	seen := make(map[uint64]bool)
	var msgIDs []uint64
	for _, evt := range events {
		if evt.Automated() && !seen[evt.MessageID] {
			seen[evt.MessageID] = true
			msgIDs = append(msgIDs, evt.MessageID)
		}
	}
	manual, err := e.Events.ListManualForMessages(ctx, msgIDs)
	if err != nil {
		return nil, CorrectionSet{}, fmt.Errorf("listing manual verdicts: %w", err)
	}
	return events, InferCorrections(events, manual), nil
}

// Accuracy infers false positives and negatives from later manual
// corrections and buckets them by zone-local calendar day.
func (e *Engine) Accuracy(ctx context.Context, w Window, zone string) (*AccuracyReport, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	loc, err := ResolveZone(zone)
	if err != nil {
		return nil, err
	}
	events, cs, err := e.inferWindow(ctx, w)
	if err != nil {
		return nil, err
	}
	return BuildAccuracyReport(events, cs, loc), nil
}

// CompareAlgorithms attributes window accuracy to individual named checks.
func (e *Engine) CompareAlgorithms(ctx context.Context, w Window) ([]AlgorithmStats, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	events, cs, err := e.inferWindow(ctx, w)
	if err != nil {
		return nil, err
	}
	return CompareAlgorithms(events, cs, e.Logger), nil
}

// Vetoes finds high-trust override events and fills message previews for the
// bounded recent view. A deleted message just leaves its preview empty.
func (e *Engine) Vetoes(ctx context.Context, w Window) (*VetoReport, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if e.HighTrustCheck == "" {
		return nil, fmt.Errorf("no high-trust check configured")
	}
	events, err := e.Events.ListWindow(ctx, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("listing detection events: %w", err)
	}
	report := DetectVetoes(events, e.HighTrustCheck, e.Logger)
	if limit := e.recentVetoLimit(); len(report.RecentVetoes) > limit {
		report.RecentVetoes = report.RecentVetoes[:limit]
	}
	for i := range report.RecentVetoes {
		msg, err := e.Events.GetMessage(ctx, report.RecentVetoes[i].MessageID)
		if err != nil {
			return nil, fmt.Errorf("loading vetoed message: %w", err)
		}
		if msg == nil {
			continue
		}
		report.RecentVetoes[i].MessagePreview = TruncatePreview(msg.Text, MessagePreviewLimit)
	}
	return report, nil
}

// ResponseTimes measures detection-to-action latency for spam verdicts in the
// window, using the first chronological Ban/Warn response per message.
func (e *Engine) ResponseTimes(ctx context.Context, w Window, zone string) (*ResponseTimeReport, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	loc, err := ResolveZone(zone)
	if err != nil {
		return nil, err
	}
	events, err := e.Events.ListWindow(ctx, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("listing detection events: %w", err)
	}
	// responses may land long after the window closes, so actions are fetched
	// per affected message with no upper time bound
	seen := make(map[uint64]bool)
	var msgIDs []uint64
	for _, evt := range events {
		if evt.Automated() && evt.IsSpam() && !seen[evt.MessageID] {
			seen[evt.MessageID] = true
			msgIDs = append(msgIDs, evt.MessageID)
		}
	}
	actions, err := e.Actions.ListForMessages(ctx, msgIDs, models.ActionBan, models.ActionWarn)
	if err != nil {
		return nil, fmt.Errorf("listing moderation actions: %w", err)
	}
	return BuildResponseTimeReport(JoinResponses(events, actions), loc), nil
}

// FullReport computes all four reports for the window concurrently. Results
// are all-or-nothing: if any one computation fails, nothing is published.
func (e *Engine) FullReport(ctx context.Context, w Window, zone string) (*FullReport, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if _, err := ResolveZone(zone); err != nil {
		return nil, err
	}

	cacheKey := w.Key() + "/" + zone
	if e.Cache != nil {
		cached, err := e.Cache.Get(ctx, "full", cacheKey)
		if err != nil {
			e.Logger.Warn("report cache read failed", "err", err)
		} else if cached != "" {
			var out FullReport
			if err := json.Unmarshal([]byte(cached), &out); err == nil {
				return &out, nil
			}
			e.Logger.Warn("discarding undecodable cached report", "key", cacheKey)
		}
	}

	var out FullReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := e.Accuracy(gctx, w, zone)
		out.Accuracy = r
		return err
	})
	g.Go(func() error {
		r, err := e.ResponseTimes(gctx, w, zone)
		out.ResponseTimes = r
		return err
	})
	g.Go(func() error {
		r, err := e.CompareAlgorithms(gctx, w)
		out.Algorithms = r
		return err
	})
	g.Go(func() error {
		r, err := e.Vetoes(gctx, w)
		out.Vetoes = r
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if e.Cache != nil {
		b, err := json.Marshal(&out)
		if err == nil {
			if err := e.Cache.Set(ctx, "full", cacheKey, string(b)); err != nil {
				e.Logger.Warn("report cache write failed", "err", err)
			}
		}
	}
	return &out, nil
}

type FullReport struct {
	Accuracy      *AccuracyReport     `json:"accuracy"`
	ResponseTimes *ResponseTimeReport `json:"responseTimes"`
	Algorithms    []AlgorithmStats    `json:"algorithms"`
	Vetoes        *VetoReport         `json:"vetoes"`
}
