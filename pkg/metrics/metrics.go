// Package metrics exposes process-wide prometheus collectors for the
// pipeline and the transcript stores. Collectors register on the default
// registry and are served by the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsProcessed counts pipeline turns by outcome ("ok" or "error").
	TurnsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botpipe_turns_total",
		Help: "Pipeline turns processed, by outcome.",
	}, []string{"outcome"})

	// ActivitiesLogged counts transcript records appended, by activity type.
	ActivitiesLogged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botpipe_transcript_activities_total",
		Help: "Transcript records appended, by activity type.",
	}, []string{"type"})

	// TranscriptLogFailures counts swallowed transcript store write errors.
	TranscriptLogFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botpipe_transcript_log_failures_total",
		Help: "Transcript store writes that failed and were dropped.",
	})

	// OutboundOps counts terminal transport operations by kind and outcome.
	OutboundOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botpipe_outbound_ops_total",
		Help: "Terminal transport operations, by kind and outcome.",
	}, []string{"op", "outcome"})
)
