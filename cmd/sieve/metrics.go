package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("sieve")

var detectionEventsIngested = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sieve_detection_events_ingested",
	Help: "Number of detection events ingested",
})

var moderationActionsApplied = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sieve_moderation_actions_applied",
	Help: "Number of moderation actions applied through the state projector",
})

var reportsComputed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sieve_reports_computed",
	Help: "Number of analytics reports computed, by report type",
}, []string{"report"})
