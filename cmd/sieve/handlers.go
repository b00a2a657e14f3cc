package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sievebot/sieve/models"
	"github.com/sievebot/sieve/modstats"
	"github.com/sievebot/sieve/projector"
)

// parseWindow reads the start/end query params as RFC 3339 timestamps or
// plain dates. A bad range is a caller error; reports over an empty range
// are not.
func parseWindow(c echo.Context) (modstats.Window, error) {
	parse := func(name string) (time.Time, error) {
		raw := c.QueryParam(name)
		if raw == "" {
			return time.Time{}, fmt.Errorf("missing %q query parameter", name)
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t, nil
		}
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid %q value %q", name, raw)
		}
		return t, nil
	}
	start, err := parse("start")
	if err != nil {
		return modstats.Window{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	end, err := parse("end")
	if err != nil {
		return modstats.Window{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	w, err := modstats.NewWindow(start, end)
	if err != nil {
		return modstats.Window{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return w, nil
}

func queryZone(c echo.Context) (string, error) {
	zone := c.QueryParam("tz")
	if zone == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "missing \"tz\" query parameter")
	}
	if _, err := modstats.ResolveZone(zone); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return zone, nil
}

func pathUserID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return id, nil
}

type addDetectionRequest struct {
	MessageID       uint64               `json:"messageId"`
	DetectedAt      *time.Time           `json:"detectedAt,omitempty"`
	DetectionSource string               `json:"detectionSource"`
	DetectionMethod string               `json:"detectionMethod,omitempty"`
	NetConfidence   int                  `json:"netConfidence"`
	Reason          string               `json:"reason,omitempty"`
	AddedBy         models.Actor         `json:"addedBy"`
	UsedForTraining bool                 `json:"usedForTraining"`
	CheckResults    []models.CheckResult `json:"checkResults,omitempty"`
	EditVersion     int                  `json:"editVersion"`
}

func (s *Server) handleAddDetection(c echo.Context) error {
	ctx := c.Request().Context()
	var req addDetectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.MessageID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messageId is required")
	}
	if req.NetConfidence < -100 || req.NetConfidence > 100 {
		return echo.NewHTTPError(http.StatusBadRequest, "netConfidence must be in [-100, 100]")
	}
	if req.DetectionSource != models.SourceAutomated && req.DetectionSource != models.SourceManual {
		return echo.NewHTTPError(http.StatusBadRequest, "detectionSource must be \"automated\" or \"manual\"")
	}

	evt := models.DetectionEvent{
		MessageID:       req.MessageID,
		DetectedAt:      time.Now().UTC(),
		DetectionSource: req.DetectionSource,
		DetectionMethod: req.DetectionMethod,
		NetConfidence:   req.NetConfidence,
		Reason:          req.Reason,
		AddedBy:         req.AddedBy,
		UsedForTraining: req.UsedForTraining,
		EditVersion:     req.EditVersion,
	}
	if req.DetectedAt != nil {
		evt.DetectedAt = req.DetectedAt.UTC()
	}
	if len(req.CheckResults) > 0 {
		encoded, err := models.EncodeCheckResults(req.CheckResults)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		evt.CheckResults = encoded
	}

	// a manual verdict that disagrees with a prior label on the message is a
	// reclassification, invalidating the message's earlier events as training
	// data: conflicting labels for one message would pollute a trainer. A
	// confirming verdict leaves them alone.
	if evt.DetectionSource == models.SourceManual {
		prior, err := s.events.ListForMessage(ctx, evt.MessageID)
		if err != nil {
			return fmt.Errorf("listing message events: %w", err)
		}
		conflict := false
		for _, p := range prior {
			if p.IsSpam() != evt.IsSpam() {
				conflict = true
				break
			}
		}
		if conflict {
			n, err := s.events.DisableTraining(ctx, evt.MessageID)
			if err != nil {
				return fmt.Errorf("disabling training flags: %w", err)
			}
			if n > 0 {
				s.logger.Info("disabled training flag on reclassified message", "message", evt.MessageID, "events", n)
			}
		}
	}
	if err := s.events.AddEvent(ctx, &evt); err != nil {
		return fmt.Errorf("storing detection event: %w", err)
	}
	detectionEventsIngested.Inc()
	return c.JSON(http.StatusCreated, evt)
}

func (s *Server) handlePutMessage(c echo.Context) error {
	var msg models.Message
	if err := c.Bind(&msg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if msg.ID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "message id is required")
	}
	if err := s.events.PutMessage(c.Request().Context(), &msg); err != nil {
		return fmt.Errorf("storing message: %w", err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleRetentionSweep(c echo.Context) error {
	raw := c.QueryParam("before")
	cutoff, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid \"before\" query parameter")
	}
	n, err := s.events.DeleteBefore(c.Request().Context(), cutoff)
	if err != nil {
		return fmt.Errorf("retention sweep: %w", err)
	}
	s.logger.Info("retention sweep complete", "cutoff", cutoff, "deleted", n)
	return c.JSON(http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleCreateUser(c echo.Context) error {
	var user models.User
	if err := c.Bind(&user); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if user.Warnings == nil {
		user.Warnings = models.WarningList{}
	}
	if err := s.db.WithContext(c.Request().Context()).Create(&user).Error; err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return c.JSON(http.StatusCreated, user)
}

type moderationStateResponse struct {
	IsBanned       bool                  `json:"isBanned"`
	BanExpiresAt   *time.Time            `json:"banExpiresAt,omitempty"`
	IsTrusted      bool                  `json:"isTrusted"`
	ActiveWarnings []models.WarningEntry `json:"activeWarnings"`
}

func stateResponse(st *models.UserModerationState, now time.Time) moderationStateResponse {
	resp := moderationStateResponse{
		IsBanned:       st.BanActive(now),
		IsTrusted:      st.IsTrusted,
		ActiveWarnings: st.ActiveWarnings(now),
	}
	if resp.IsBanned {
		resp.BanExpiresAt = st.BanExpiresAt
	}
	return resp
}

func (s *Server) handleGetModerationState(c echo.Context) error {
	userID, err := pathUserID(c)
	if err != nil {
		return err
	}
	st, err := s.projector.GetState(c.Request().Context(), userID)
	if err != nil {
		return userError(err)
	}
	return c.JSON(http.StatusOK, stateResponse(st, time.Now().UTC()))
}

func (s *Server) handleRebuildModerationState(c echo.Context) error {
	userID, err := pathUserID(c)
	if err != nil {
		return err
	}
	st, err := s.projector.Rebuild(c.Request().Context(), userID)
	if err != nil {
		return userError(err)
	}
	return c.JSON(http.StatusOK, stateResponse(st, time.Now().UTC()))
}

type setBanRequest struct {
	Banned    bool         `json:"banned"`
	ExpiresAt *time.Time   `json:"expiresAt,omitempty"`
	MessageID *uint64      `json:"messageId,omitempty"`
	IssuedBy  models.Actor `json:"issuedBy"`
	Reason    string       `json:"reason,omitempty"`
}

func (s *Server) handleSetBanStatus(c echo.Context) error {
	userID, err := pathUserID(c)
	if err != nil {
		return err
	}
	var req setBanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err = s.projector.SetBanStatus(c.Request().Context(), userID, req.Banned, req.ExpiresAt, req.MessageID, req.IssuedBy, req.Reason)
	if err != nil {
		return userError(err)
	}
	moderationActionsApplied.Inc()
	return c.NoContent(http.StatusNoContent)
}

type addWarningRequest struct {
	Reason    string       `json:"reason,omitempty"`
	ExpiresAt *time.Time   `json:"expiresAt,omitempty"`
	MessageID *uint64      `json:"messageId,omitempty"`
	IssuedBy  models.Actor `json:"issuedBy"`
}

func (s *Server) handleAddWarning(c echo.Context) error {
	userID, err := pathUserID(c)
	if err != nil {
		return err
	}
	var req addWarningRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	active, err := s.projector.AddWarning(c.Request().Context(), userID, req.Reason, req.ExpiresAt, req.MessageID, req.IssuedBy)
	if err != nil {
		return userError(err)
	}
	moderationActionsApplied.Inc()
	return c.JSON(http.StatusOK, map[string]int{"activeWarnings": active})
}

type updateTrustRequest struct {
	Trusted  bool         `json:"trusted"`
	IssuedBy models.Actor `json:"issuedBy"`
	Reason   string       `json:"reason,omitempty"`
}

func (s *Server) handleUpdateTrustStatus(c echo.Context) error {
	userID, err := pathUserID(c)
	if err != nil {
		return err
	}
	var req updateTrustRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err = s.projector.UpdateTrustStatus(c.Request().Context(), userID, req.Trusted, req.IssuedBy, req.Reason)
	if err != nil {
		return userError(err)
	}
	moderationActionsApplied.Inc()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAccuracyReport(c echo.Context) error {
	w, err := parseWindow(c)
	if err != nil {
		return err
	}
	zone, err := queryZone(c)
	if err != nil {
		return err
	}
	report, err := s.engine.Accuracy(c.Request().Context(), w, zone)
	if err != nil {
		return err
	}
	reportsComputed.WithLabelValues("accuracy").Inc()
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleResponseTimeReport(c echo.Context) error {
	w, err := parseWindow(c)
	if err != nil {
		return err
	}
	zone, err := queryZone(c)
	if err != nil {
		return err
	}
	report, err := s.engine.ResponseTimes(c.Request().Context(), w, zone)
	if err != nil {
		return err
	}
	reportsComputed.WithLabelValues("response-times").Inc()
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleAlgorithmReport(c echo.Context) error {
	w, err := parseWindow(c)
	if err != nil {
		return err
	}
	report, err := s.engine.CompareAlgorithms(c.Request().Context(), w)
	if err != nil {
		return err
	}
	reportsComputed.WithLabelValues("algorithms").Inc()
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleVetoReport(c echo.Context) error {
	w, err := parseWindow(c)
	if err != nil {
		return err
	}
	report, err := s.engine.Vetoes(c.Request().Context(), w)
	if err != nil {
		return err
	}
	reportsComputed.WithLabelValues("vetoes").Inc()
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleFullReport(c echo.Context) error {
	w, err := parseWindow(c)
	if err != nil {
		return err
	}
	zone, err := queryZone(c)
	if err != nil {
		return err
	}
	report, err := s.engine.FullReport(c.Request().Context(), w, zone)
	if err != nil {
		return err
	}
	reportsComputed.WithLabelValues("full").Inc()
	return c.JSON(http.StatusOK, report)
}

func userError(err error) error {
	if errors.Is(err, projector.ErrUserNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}
