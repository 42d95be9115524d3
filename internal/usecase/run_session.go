package usecase

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/port"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type sessionEvent interface {
	sessionEvent()
}

type triggerFired struct {
	trigger entity.Trigger
}

type extractionDone struct {
	modality entity.Modality
	gen      uint64
	at       float64
	sample   *entity.Sample
	err      error
}

type uploadDone struct {
	modality entity.Modality
	gen      uint64
	at       float64
	duration float64
	label    string
	err      error
}

func (triggerFired) sessionEvent()   {}
func (extractionDone) sessionEvent() {}
func (uploadDone) sessionEvent()     {}

// SessionRunner drives one sampling session: it receives triggers from a
// trigger source, applies the debounce and policy rules, and runs every
// admitted sample through the extract and upload stages. All session state is
// mutated on a single event loop goroutine; the stages run on worker
// goroutines and report back as events, so a due trigger that finds its
// modality busy is dropped, never queued.
type SessionRunner struct {
	session    *entity.Session
	extractor  port.SampleExtractor
	classifier port.Classifier
	publisher  port.LabelPublisher
	repo       port.ResultRepository // nil disables persistence
	logger     *zap.Logger

	chunkSeconds float64
	drainGrace   time.Duration

	// events is shared across runs so completions that outlive one run are
	// drained, and discarded by generation, in the next.
	events chan sessionEvent

	// set at the start of Run; the runner is not safe for concurrent runs
	src     entity.MediaSource
	persist bool
}

type SessionRunnerConfig struct {
	ChunkSeconds float64
	DrainGrace   time.Duration
}

const defaultDrainGrace = 10 * time.Second

func NewSessionRunner(
	session *entity.Session,
	extractor port.SampleExtractor,
	classifier port.Classifier,
	publisher port.LabelPublisher,
	repo port.ResultRepository,
	logger *zap.Logger,
	cfg SessionRunnerConfig,
) *SessionRunner {
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = defaultDrainGrace
	}
	return &SessionRunner{
		session:      session,
		extractor:    extractor,
		classifier:   classifier,
		publisher:    publisher,
		repo:         repo,
		logger:       logger,
		chunkSeconds: cfg.ChunkSeconds,
		drainGrace:   cfg.DrainGrace,
		events:       make(chan sessionEvent, 64),
	}
}

// Run binds the session to src and consumes triggers until the source is
// exhausted or ctx is cancelled. Teardown never cancels in-flight work: the
// loop keeps draining completions, up to the drain grace once cancelled, and
// anything still running after that reports into the shared event channel
// where a later run discards it by generation.
func (r *SessionRunner) Run(ctx context.Context, src entity.MediaSource, triggers port.TriggerSource) error {
	r.session.Reset(src.Describe())
	r.src = src

	log := r.logger.With(
		zap.String("session_id", r.session.ID.String()),
		zap.String("source", src.Describe()),
		zap.String("policy", string(r.session.Policy)),
	)

	r.persist = r.repo != nil
	if r.persist {
		if err := r.repo.CreateSession(ctx, r.session); err != nil {
			log.Error("failed to persist session, continuing without persistence", zap.Error(err))
			r.persist = false
		}
	}

	log.Info("session started",
		zap.Float64("frame_interval", r.session.Intervals.Image),
		zap.Float64("audio_interval", r.session.Intervals.Audio),
	)

	srcCtx, stopTriggers := context.WithCancel(ctx)
	defer stopTriggers()

	// Workers outlive ctx so in-flight samples finish during teardown.
	workCtx := context.WithoutCancel(ctx)

	pumpDone := make(chan error, 1)
	go func() {
		pumpDone <- triggers.Start(srcCtx, func(t entity.Trigger) {
			select {
			case r.events <- triggerFired{trigger: t}:
			default:
				for _, m := range t.Modalities {
					metrics.TriggersDroppedTotal.WithLabelValues(string(m), "backlog").Inc()
				}
			}
		})
	}()

	var srcErr error
	inflight := 0
	ended := false
	done := ctx.Done()
	var grace <-chan time.Time

	// The loop is the only receiver on r.events, so once the source has
	// ended and nothing is in flight an empty channel means no more events
	// can arrive from this run.
	for !ended || inflight > 0 || len(r.events) > 0 {
		select {
		case <-done:
			done = nil
			stopTriggers()
			grace = time.After(r.drainGrace)
			log.Info("teardown requested, draining in-flight samples", zap.Int("in_flight", inflight))
		case <-grace:
			log.Warn("drain grace elapsed, abandoning in-flight samples", zap.Int("in_flight", inflight))
			r.finish(workCtx, log)
			return srcErr
		case err := <-pumpDone:
			ended = true
			if err != nil && !errors.Is(err, context.Canceled) {
				srcErr = err
				log.Error("trigger source failed", zap.Error(err))
			}
		case ev := <-r.events:
			inflight += r.handleEvent(workCtx, ev, log)
		}
	}

	r.finish(workCtx, log)
	return srcErr
}

func (r *SessionRunner) finish(ctx context.Context, log *zap.Logger) {
	if r.persist {
		if err := r.repo.CloseSession(ctx, r.session.ID, time.Now().UTC()); err != nil {
			log.Error("failed to close session record", zap.Error(err))
		}
	}

	labels := r.session.Labels()
	log.Info("session finished",
		zap.String("image_label", labels[entity.ModalityImage]),
		zap.String("audio_label", labels[entity.ModalityAudio]),
	)
}

// handleEvent applies one event to the session and returns the change in the
// number of in-flight sequences.
func (r *SessionRunner) handleEvent(ctx context.Context, ev sessionEvent, log *zap.Logger) int {
	switch ev := ev.(type) {
	case triggerFired:
		return r.handleTrigger(ctx, ev.trigger, log)
	case extractionDone:
		return r.handleExtractionDone(ctx, ev, log)
	case uploadDone:
		return r.handleUploadDone(ctx, ev, log)
	default:
		return 0
	}
}

func (r *SessionRunner) handleTrigger(ctx context.Context, trig entity.Trigger, log *zap.Logger) int {
	started := 0
	for _, m := range trig.Modalities {
		if !r.session.DueForSample(m, trig.Time) {
			continue
		}
		if !r.session.CanStart(m) || !r.session.StartSample(m, trig.Time) {
			metrics.TriggersDroppedTotal.WithLabelValues(string(m), "busy").Inc()
			log.Debug("trigger dropped, sample in flight",
				zap.String("modality", string(m)),
				zap.Float64("t", trig.Time),
			)
			continue
		}
		r.startExtraction(ctx, m, trig.Time)
		started++
	}
	return started
}

func (r *SessionRunner) startExtraction(ctx context.Context, m entity.Modality, at float64) {
	gen := r.session.Generation()
	src := r.src
	metrics.ActiveSamples.Inc()

	go func() {
		tracer := otel.Tracer("usecase")
		ctx, span := tracer.Start(ctx, "extract_sample")
		span.SetAttributes(
			attribute.String("modality", string(m)),
			attribute.Float64("sample_time", at),
		)
		defer span.End()

		start := time.Now()
		var sample *entity.Sample
		var err error
		if m == entity.ModalityAudio {
			sample, err = r.extractor.ExtractAudioChunk(ctx, src, at, r.chunkSeconds)
		} else {
			sample, err = r.extractor.ExtractFrame(ctx, src, at)
		}
		metrics.StageDuration.WithLabelValues("extract", string(m)).Observe(time.Since(start).Seconds())

		r.events <- extractionDone{modality: m, gen: gen, at: at, sample: sample, err: err}
	}()
}

func (r *SessionRunner) handleExtractionDone(ctx context.Context, ev extractionDone, log *zap.Logger) int {
	if ev.gen != r.session.Generation() {
		r.discardStale(ev.sample, log)
		return 0
	}

	if ev.err != nil {
		r.session.FinishExtraction(ev.modality, false)
		metrics.ActiveSamples.Dec()
		metrics.SampleFailuresTotal.WithLabelValues(string(ev.modality), "extract").Inc()
		log.Error("sample extraction failed",
			zap.String("modality", string(ev.modality)),
			zap.Float64("t", ev.at),
			zap.Error(ev.err),
		)
		return -1
	}

	r.session.FinishExtraction(ev.modality, true)
	metrics.SamplesExtractedTotal.WithLabelValues(string(ev.modality)).Inc()
	r.startUpload(ctx, ev)
	return 0
}

func (r *SessionRunner) startUpload(ctx context.Context, ev extractionDone) {
	sample := ev.sample
	gen := ev.gen

	go func() {
		tracer := otel.Tracer("usecase")
		ctx, span := tracer.Start(ctx, "upload_sample")
		span.SetAttributes(
			attribute.String("modality", string(sample.Modality())),
			attribute.Float64("sample_time", sample.Timestamp),
		)
		defer span.End()

		start := time.Now()
		label, err := r.classifier.Classify(ctx, sample)
		metrics.StageDuration.WithLabelValues("upload", string(sample.Modality())).Observe(time.Since(start).Seconds())

		r.events <- uploadDone{
			modality: sample.Modality(),
			gen:      gen,
			at:       sample.Timestamp,
			duration: sample.Duration,
			label:    label,
			err:      err,
		}
	}()
}

func (r *SessionRunner) handleUploadDone(ctx context.Context, ev uploadDone, log *zap.Logger) int {
	if ev.gen != r.session.Generation() {
		// the classifier already removed the backing file
		r.discardStale(nil, log)
		return 0
	}

	metrics.ActiveSamples.Dec()

	if ev.err != nil {
		r.session.FinishUpload(ev.modality, "", false)
		metrics.SampleFailuresTotal.WithLabelValues(string(ev.modality), "upload").Inc()
		log.Error("sample upload failed, keeping previous label",
			zap.String("modality", string(ev.modality)),
			zap.Float64("t", ev.at),
			zap.Error(ev.err),
		)
		return -1
	}

	r.session.FinishUpload(ev.modality, ev.label, true)
	metrics.LabelUpdatesTotal.WithLabelValues(string(ev.modality)).Inc()
	log.Info("label updated",
		zap.String("modality", string(ev.modality)),
		zap.String("label", ev.label),
		zap.Float64("t", ev.at),
	)

	labelEv := entity.LabelEvent{
		SessionID:  r.session.ID,
		Modality:   ev.modality,
		Label:      ev.label,
		SampleTime: ev.at,
		Duration:   ev.duration,
		EmittedAt:  time.Now().UTC(),
	}
	if err := r.publisher.PublishLabel(ctx, labelEv); err != nil {
		log.Error("failed to publish label event", zap.Error(err))
	}

	if r.persist {
		rec := entity.NewClassificationRecord(r.session.ID, ev.modality, ev.label, ev.at, ev.duration)
		if err := r.repo.SaveClassification(ctx, rec); err != nil {
			log.Error("failed to persist classification", zap.Error(err))
		}
	}

	return -1
}

// discardStale balances the in-flight gauge for a completion whose session
// generation has ended and removes an orphaned sample file nobody will
// upload.
func (r *SessionRunner) discardStale(sample *entity.Sample, log *zap.Logger) {
	metrics.ActiveSamples.Dec()
	metrics.StaleCompletionsTotal.Inc()

	if sample != nil {
		if err := os.Remove(sample.FilePath); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove orphaned sample",
				zap.String("path", sample.FilePath),
				zap.Error(err),
			)
		}
	}
	log.Debug("discarded completion from an ended session generation")
}
