package scoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truck-event-scorer/internal/artifact"
	"truck-event-scorer/internal/classifier"
	"truck-event-scorer/internal/enrich"
	"truck-event-scorer/internal/metrics"
	"truck-event-scorer/internal/models"
	"truck-event-scorer/internal/sink"
)

const (
	normalPayload    = "2016-05-04 10:15:30|14|12|Jamie Engesser|160405074|Joplin to Kansas City|Normal|37.09|-94.23|1000"
	violationPayload = "2016-05-04 10:15:30|14|12|Jamie Engesser|160405074|Joplin to Kansas City|Lane Departure|37.09|-94.23|1001"
)

type fakeEnricher struct {
	mu       sync.Mutex
	profile  models.DriverProfile
	usage    models.WeeklyUsage
	err      error
	calls    int
	lastWeek int
	ctxErr   error
	block    bool
}

func (f *fakeEnricher) LookupDriverProfile(ctx context.Context, _ int) (models.DriverProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.block {
		<-ctx.Done()
		f.ctxErr = ctx.Err()
		return models.DriverProfile{}, ctx.Err()
	}
	return f.profile, f.err
}

func (f *fakeEnricher) LookupWeeklyUsage(_ context.Context, _, week int) (models.WeeklyUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastWeek = week
	return f.usage, f.err
}

type fakeEmitter struct {
	mu      sync.Mutex
	records []*models.EmittedRecord
	err     error
}

func (f *fakeEmitter) Emit(_ context.Context, rec *models.EmittedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

type fakeSink struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSink) Persist(context.Context, *models.Event, models.FeatureVector, models.Prediction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

type fakeAck struct {
	acks int
	naks int
}

func (f *fakeAck) Ack() error { f.acks++; return nil }
func (f *fakeAck) Nak() error { f.naks++; return nil }

type failingStore struct{ artifact.Store }

func (failingStore) Write(context.Context, string, []byte) error { return errors.New("hdfs unavailable") }

// rainModel flags every rainy event as a violation
func rainModel() *classifier.Classifier {
	w := make([]float64, models.FeatureCount)
	w[models.FeatureRainy] = 10
	return classifier.New(w, -5)
}

func staticWeather(w models.Weather) enrich.WeatherSource {
	return enrich.WeatherFunc(func(context.Context, int) (models.Weather, error) { return w, nil })
}

type harness struct {
	op       *Operator
	enricher *fakeEnricher
	emitter  *fakeEmitter
	sink     *fakeSink
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, weather models.Weather, mutate func(*Dependencies)) *harness {
	t.Helper()

	h := &harness{
		enricher: &fakeEnricher{
			profile: models.DriverProfile{Certified: true},
			usage:   models.WeeklyUsage{HoursLogged: 400, MilesLogged: 12000},
		},
		emitter: &fakeEmitter{},
		sink:    &fakeSink{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}

	deps := Dependencies{
		Model:    rainModel(),
		Enricher: h.enricher,
		Weather:  staticWeather(weather),
		Emitter:  h.emitter,
		Sink:     h.sink,
		Metrics:  h.metrics,
		Logger:   zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&deps)
	}

	op, err := NewOperator(Config{}, deps)
	require.NoError(t, err)
	h.op = op

	return h
}

func TestHandleNormalPrediction(t *testing.T) {
	h := newHarness(t, models.Weather{}, nil)
	ack := &fakeAck{}

	err := h.op.Handle(context.Background(), []byte(normalPayload), ack)
	require.NoError(t, err)

	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, 0, ack.naks)
	require.Len(t, h.emitter.records, 1)
	assert.Equal(t, models.LabelNormal, h.emitter.records[0].Prediction)
	assert.Equal(t, 0, h.sink.calls)
	assert.Equal(t, 18, h.enricher.lastWeek)
}

func TestHandleViolationPersists(t *testing.T) {
	h := newHarness(t, models.Weather{Rainy: true}, nil)
	ack := &fakeAck{}

	require.NoError(t, h.op.Handle(context.Background(), []byte(normalPayload), ack))

	assert.Equal(t, 1, ack.acks)
	require.Len(t, h.emitter.records, 1)

	rec := h.emitter.records[0]
	assert.Equal(t, []interface{}{
		models.LabelViolation, "Jamie Engesser", "Joplin to Kansas City", 12, 14,
		"5/4/16 10:15 AM", -94.23, 37.09, "Y", "hourly", 400.0, 12000.0, "N", "Y", "N",
	}, rec.Values())
	assert.Equal(t, 1, h.sink.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsScored.WithLabelValues("violation")))
}

func TestHandleFiltersOtherEventTypes(t *testing.T) {
	h := newHarness(t, models.Weather{Rainy: true}, nil)
	ack := &fakeAck{}

	require.NoError(t, h.op.Handle(context.Background(), []byte(violationPayload), ack))

	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, 0, ack.naks)
	assert.Empty(t, h.emitter.records)
	assert.Equal(t, 0, h.enricher.calls, "no lookups for dropped events")
	assert.Equal(t, 0, h.sink.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsFiltered))
}

func TestHandleEnrichmentFailureNaks(t *testing.T) {
	h := newHarness(t, models.Weather{Rainy: true}, nil)
	h.enricher.err = enrich.ErrEnrichmentUnavailable
	ack := &fakeAck{}

	err := h.op.Handle(context.Background(), []byte(normalPayload), ack)
	assert.ErrorIs(t, err, enrich.ErrEnrichmentUnavailable)

	assert.Equal(t, 0, ack.acks)
	assert.Equal(t, 1, ack.naks)
	assert.Empty(t, h.emitter.records)
	assert.Equal(t, 0, h.sink.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsFailed.WithLabelValues(metrics.StageEnrich)))
}

func TestHandleWeatherFailureIsEnrichmentFailure(t *testing.T) {
	h := newHarness(t, models.Weather{}, func(d *Dependencies) {
		d.Weather = enrich.WeatherFunc(func(context.Context, int) (models.Weather, error) {
			return models.Weather{}, errors.New("weather api down")
		})
	})
	ack := &fakeAck{}

	err := h.op.Handle(context.Background(), []byte(normalPayload), ack)
	assert.ErrorIs(t, err, enrich.ErrEnrichmentUnavailable)
	assert.Equal(t, 1, ack.naks)
	assert.Empty(t, h.emitter.records)
}

func TestHandleMalformedPayloadNaks(t *testing.T) {
	h := newHarness(t, models.Weather{}, nil)
	ack := &fakeAck{}

	err := h.op.Handle(context.Background(), []byte("not|a|record"), ack)
	assert.Error(t, err)
	assert.Equal(t, 1, ack.naks)
	assert.Equal(t, 0, h.enricher.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsFailed.WithLabelValues(metrics.StageDecode)))
}

func TestHandleEmitFailureNaks(t *testing.T) {
	h := newHarness(t, models.Weather{Rainy: true}, nil)
	h.emitter.err = errors.New("no responders")
	ack := &fakeAck{}

	err := h.op.Handle(context.Background(), []byte(normalPayload), ack)
	assert.Error(t, err)
	assert.Equal(t, 1, ack.naks)
	assert.Equal(t, 0, h.sink.calls)
}

func TestHandleSinkFailureStillAcks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	auditSink := sink.New(failingStore{}, "audit", m, zerolog.Nop())
	emitter := &fakeEmitter{}

	op, err := NewOperator(Config{}, Dependencies{
		Model:    rainModel(),
		Enricher: &fakeEnricher{},
		Weather:  staticWeather(models.Weather{Rainy: true}),
		Emitter:  emitter,
		Sink:     auditSink,
		Metrics:  m,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	ack := &fakeAck{}
	require.NoError(t, op.Handle(context.Background(), []byte(normalPayload), ack))

	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, 0, ack.naks)
	require.Len(t, emitter.records, 1)
	assert.Equal(t, models.LabelViolation, emitter.records[0].Prediction)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsFailed.WithLabelValues(metrics.StagePersist)))
}

func TestProcessLookupTimeout(t *testing.T) {
	h := newHarness(t, models.Weather{}, nil)
	h.enricher.block = true
	op, err := NewOperator(Config{LookupTimeout: 10 * time.Millisecond}, Dependencies{
		Model:    rainModel(),
		Enricher: h.enricher,
		Weather:  staticWeather(models.Weather{}),
		Emitter:  h.emitter,
		Sink:     h.sink,
		Metrics:  h.metrics,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = op.Process(context.Background(), &models.Event{EventType: "Normal"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, h.enricher.ctxErr, context.DeadlineExceeded)
}

func TestProcessCustomTarget(t *testing.T) {
	h := newHarness(t, models.Weather{}, nil)
	op, err := NewOperator(Config{TargetEventType: "Lane Departure"}, Dependencies{
		Model:    rainModel(),
		Enricher: h.enricher,
		Weather:  staticWeather(models.Weather{}),
		Emitter:  h.emitter,
		Sink:     h.sink,
		Metrics:  h.metrics,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	rec, err := op.Process(context.Background(), &models.Event{EventType: "Normal"})
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = op.Process(context.Background(), &models.Event{EventType: "Lane Departure"})
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestProcessConcurrent(t *testing.T) {
	h := newHarness(t, models.Weather{Rainy: true}, nil)
	e := &models.Event{EventType: "Normal", DriverID: 12}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := h.op.Process(context.Background(), e)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, h.emitter.records, 400)
	assert.Equal(t, 400, h.sink.calls)
}

func TestNewOperatorValidation(t *testing.T) {
	base := func() Dependencies {
		return Dependencies{
			Model:    rainModel(),
			Enricher: &fakeEnricher{},
			Weather:  staticWeather(models.Weather{}),
			Emitter:  &fakeEmitter{},
			Sink:     &fakeSink{},
			Metrics:  metrics.New(prometheus.NewRegistry()),
			Logger:   zerolog.Nop(),
		}
	}

	tests := []struct {
		name   string
		mutate func(*Dependencies)
		is     error
	}{
		{"no model", func(d *Dependencies) { d.Model = nil }, errMissingDependency},
		{"no enricher", func(d *Dependencies) { d.Enricher = nil }, errMissingDependency},
		{"no weather", func(d *Dependencies) { d.Weather = nil }, errMissingDependency},
		{"no emitter", func(d *Dependencies) { d.Emitter = nil }, errMissingDependency},
		{"no sink", func(d *Dependencies) { d.Sink = nil }, errMissingDependency},
		{"no metrics", func(d *Dependencies) { d.Metrics = nil }, errMissingDependency},
		{"wrong model size", func(d *Dependencies) { d.Model = classifier.New([]float64{1, 2}, 0) }, classifier.ErrDimensionMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := base()
			tc.mutate(&d)
			_, err := NewOperator(Config{}, d)
			assert.ErrorIs(t, err, tc.is)
		})
	}
}
