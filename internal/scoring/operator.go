// Package scoring runs the per-event enrich, score, emit and persist pipeline
// and owns the acknowledge-or-fail contract toward the transport.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"truck-event-scorer/internal/classifier"
	"truck-event-scorer/internal/enrich"
	"truck-event-scorer/internal/features"
	"truck-event-scorer/internal/metrics"
	"truck-event-scorer/internal/models"
	"truck-event-scorer/internal/parser"
)

// DefaultTargetEventType is the only event type scored by default
const DefaultTargetEventType = "Normal"

var errMissingDependency = errors.New("missing dependency")

// Emitter sends a scored record downstream
type Emitter interface {
	Emit(ctx context.Context, rec *models.EmittedRecord) error
}

// Sink persists violation predictions. It must not fail the caller.
type Sink interface {
	Persist(ctx context.Context, e *models.Event, fv models.FeatureVector, p models.Prediction)
}

// Acknowledger signals the per-event outcome to the transport
type Acknowledger interface {
	Ack() error
	Nak() error
}

// Config controls operator behavior
type Config struct {
	// TargetEventType is the event type that gets scored. Other types are
	// dropped and acknowledged.
	TargetEventType string
	// LookupTimeout bounds the enrichment stage. Zero means no bound.
	LookupTimeout time.Duration
}

// Dependencies are the collaborators an Operator is built from
type Dependencies struct {
	Model    *classifier.Classifier
	Enricher enrich.Enricher
	Weather  enrich.WeatherSource
	Emitter  Emitter
	Sink     Sink
	Parser   *parser.Parser
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Operator scores events. It holds only read-only state after construction
// and is safe for concurrent use by many workers.
type Operator struct {
	cfg      Config
	model    *classifier.Classifier
	enricher enrich.Enricher
	weather  enrich.WeatherSource
	emitter  Emitter
	sink     Sink
	parser   *parser.Parser
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewOperator validates the dependencies and that the model matches the
// feature vector layout.
func NewOperator(cfg Config, deps Dependencies) (*Operator, error) {
	switch {
	case deps.Model == nil:
		return nil, fmt.Errorf("%w: model", errMissingDependency)
	case deps.Enricher == nil:
		return nil, fmt.Errorf("%w: enricher", errMissingDependency)
	case deps.Weather == nil:
		return nil, fmt.Errorf("%w: weather source", errMissingDependency)
	case deps.Emitter == nil:
		return nil, fmt.Errorf("%w: emitter", errMissingDependency)
	case deps.Sink == nil:
		return nil, fmt.Errorf("%w: sink", errMissingDependency)
	case deps.Metrics == nil:
		return nil, fmt.Errorf("%w: metrics", errMissingDependency)
	}

	if n := deps.Model.NumFeatures(); n != models.FeatureCount {
		return nil, fmt.Errorf("%w: model has %d weights, feature vector has %d features",
			classifier.ErrDimensionMismatch, n, models.FeatureCount)
	}

	if cfg.TargetEventType == "" {
		cfg.TargetEventType = DefaultTargetEventType
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(nil)
	}

	return &Operator{
		cfg:      cfg,
		model:    deps.Model,
		enricher: deps.Enricher,
		weather:  deps.Weather,
		emitter:  deps.Emitter,
		sink:     deps.Sink,
		parser:   deps.Parser,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With().Str("component", "scoring").Logger(),
	}, nil
}

// Model returns the classifier the operator scores with
func (o *Operator) Model() *classifier.Classifier {
	return o.model
}

// Process runs one event through the pipeline. It returns the emitted
// record, or nil if the event type is not scored. Enrichment, scoring and
// emission failures are returned; sink failures are not.
func (o *Operator) Process(ctx context.Context, e *models.Event) (*models.EmittedRecord, error) {
	o.metrics.IncrementReceived()

	if e.EventType != o.cfg.TargetEventType {
		o.metrics.IncrementFiltered()
		o.logger.Debug().Str("event_key", e.EventKey).Str("event_type", e.EventType).Msg("Event type not scored, dropping")
		return nil, nil
	}

	start := time.Now()

	fv, err := o.enrich(ctx, e)
	if err != nil {
		o.metrics.IncrementFailed(metrics.StageEnrich)
		return nil, err
	}

	pred, err := o.model.Predict(e.EventKey, fv)
	if err != nil {
		o.metrics.IncrementFailed(metrics.StageScore)
		return nil, err
	}

	rec := models.NewEmittedRecord(e, pred)
	if err := o.emitter.Emit(ctx, rec); err != nil {
		o.metrics.IncrementFailed(metrics.StageEmit)
		return nil, fmt.Errorf("failed to emit record: %w", err)
	}

	o.metrics.IncrementScored(string(pred.Label))

	if pred.IsViolation() {
		o.sink.Persist(ctx, e, fv, pred)
	}

	o.metrics.ObserveDuration(time.Since(start).Seconds())
	o.logger.Debug().
		Str("event_key", e.EventKey).
		Str("prediction", string(pred.Label)).
		Float64("probability", pred.Probability).
		Msg("Event scored")

	return rec, nil
}

func (o *Operator) enrich(ctx context.Context, e *models.Event) (models.FeatureVector, error) {
	if o.cfg.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.LookupTimeout)
		defer cancel()
	}

	profile, err := o.enricher.LookupDriverProfile(ctx, e.DriverID)
	if err != nil {
		return models.FeatureVector{}, err
	}

	usage, err := o.enricher.LookupWeeklyUsage(ctx, e.DriverID, enrich.Week(e.EventTime))
	if err != nil {
		return models.FeatureVector{}, err
	}

	weather, err := o.weather.LookupWeatherBias(ctx, e.DriverID)
	if err != nil {
		if !errors.Is(err, enrich.ErrEnrichmentUnavailable) {
			err = fmt.Errorf("%w: weather: %v", enrich.ErrEnrichmentUnavailable, err)
		}
		return models.FeatureVector{}, err
	}

	return features.Build(e, profile, usage, weather), nil
}

// Handle is the transport boundary: it decodes and processes a payload, then
// acks on success or naks on any failure so the transport can redeliver.
// Sink failures never turn an ack into a nak. The processing error is returned
// for the caller's logs.
func (o *Operator) Handle(ctx context.Context, payload []byte, ack Acknowledger) error {
	err := o.handle(ctx, payload)
	if err != nil {
		o.metrics.IncrementAck("nak")
		o.logger.Warn().Err(err).Msg("Event processing failed, requesting redelivery")
		if nakErr := ack.Nak(); nakErr != nil {
			o.logger.Error().Err(nakErr).Msg("Failed to nak message")
		}
		return err
	}

	o.metrics.IncrementAck("ack")
	if ackErr := ack.Ack(); ackErr != nil {
		o.logger.Error().Err(ackErr).Msg("Failed to ack message")
	}
	return nil
}

func (o *Operator) handle(ctx context.Context, payload []byte) error {
	e, err := o.parser.Decode(payload)
	if err != nil {
		o.metrics.IncrementFailed(metrics.StageDecode)
		return err
	}

	_, err = o.Process(ctx, e)
	return err
}
