package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesExtractedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtimecam_samples_extracted_total",
		Help: "Total number of samples extracted, by modality",
	}, []string{"modality"})

	SampleFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtimecam_sample_failures_total",
		Help: "Total number of failed sampling sequences, by modality and stage",
	}, []string{"modality", "stage"})

	TriggersDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtimecam_triggers_dropped_total",
		Help: "Due triggers skipped without being queued, by modality and reason",
	}, []string{"modality", "reason"})

	StaleCompletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtimecam_stale_completions_total",
		Help: "Completions discarded because their session generation was over",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "realtimecam_stage_duration_seconds",
		Help:    "Duration of the extraction and upload stages",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage", "modality"})

	LabelUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtimecam_label_updates_total",
		Help: "Successful label updates, by modality",
	}, []string{"modality"})

	ActiveSamples = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtimecam_active_samples",
		Help: "Number of sampling sequences currently in flight",
	})
)
