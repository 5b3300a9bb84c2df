// Package sink writes audit reports for violation predictions. Writes are
// best-effort: failures are logged and counted, never returned.
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"truck-event-scorer/internal/artifact"
	"truck-event-scorer/internal/metrics"
	"truck-event-scorer/internal/models"
)

// ErrPersistence wraps any failure to write an audit report
var ErrPersistence = errors.New("persistence failed")

// AuditSink writes one report per violation under base in the artifact store.
// Report names are the current Unix time in milliseconds, optionally
// suffixed with a random UUID.
type AuditSink struct {
	store       artifact.Store
	base        string
	uniqueNames bool
	now         func() time.Time
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// Option configures an AuditSink
type Option func(*AuditSink)

// WithUniqueNames appends a UUID to report names so two reports written in
// the same millisecond do not overwrite each other.
func WithUniqueNames() Option {
	return func(s *AuditSink) { s.uniqueNames = true }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *AuditSink) { s.now = now }
}

// New creates an audit sink writing under base
func New(store artifact.Store, base string, m *metrics.Metrics, logger zerolog.Logger, opts ...Option) *AuditSink {
	s := &AuditSink{
		store:   store,
		base:    artifact.Clean(base),
		now:     time.Now,
		logger:  logger.With().Str("component", "sink").Logger(),
		metrics: m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Base returns the location reports are written under
func (s *AuditSink) Base() string {
	return s.base
}

// Persist writes the audit report for a violation. It never fails the caller.
func (s *AuditSink) Persist(ctx context.Context, e *models.Event, fv models.FeatureVector, p models.Prediction) {
	name, err := s.write(ctx, e, fv, p)
	if err != nil {
		s.metrics.IncrementFailed(metrics.StagePersist)
		s.logger.Error().Err(err).Str("event_key", e.EventKey).Msg("Failed to persist prediction")
		return
	}

	s.metrics.IncrementPersisted()
	s.logger.Debug().Str("event_key", e.EventKey).Str("name", name).Msg("Prediction persisted")
}

func (s *AuditSink) write(ctx context.Context, e *models.Event, fv models.FeatureVector, p models.Prediction) (string, error) {
	name := s.name()
	if err := s.store.Write(ctx, name, Report(e, fv, p)); err != nil {
		return name, fmt.Errorf("%w: %s: %v", ErrPersistence, name, err)
	}
	return name, nil
}

func (s *AuditSink) name() string {
	id := strconv.FormatInt(s.now().UnixMilli(), 10)
	if s.uniqueNames {
		id += "-" + uuid.NewString()
	}
	return artifact.Clean(s.base + "/" + id)
}

// Reports lists the stored audit reports, newest first
func (s *AuditSink) Reports(ctx context.Context) ([]models.AuditEntry, error) {
	entries, err := s.store.List(ctx, s.base)
	if errors.Is(err, artifact.ErrNotFound) {
		return []models.AuditEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	reports := make([]models.AuditEntry, 0, len(entries))
	for _, e := range entries {
		reports = append(reports, models.AuditEntry{Name: e.Base(), Size: e.Size, CreatedAt: e.ModTime})
	}
	sort.SliceStable(reports, func(i, j int) bool { return reports[i].Name > reports[j].Name })

	return reports, nil
}

// ReadReport returns the content of the named report
func (s *AuditSink) ReadReport(ctx context.Context, name string) ([]byte, error) {
	if name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", artifact.ErrNotFound, name)
	}
	return s.store.Read(ctx, s.base+"/"+name)
}

// Report renders the human-readable audit report
func Report(e *models.Event, fv models.FeatureVector, p models.Prediction) []byte {
	wagePlan := "Hours"
	if fv[models.FeatureWagePlanMiles] == 1 {
		wagePlan = "Miles"
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "Original Event: %s\n\n", e)
	fmt.Fprintf(&b, "Certification status (from keyed store): %s\n", models.YesNo(fv[models.FeatureCertified]))
	fmt.Fprintf(&b, "Wage plan (from keyed store): %s\n", wagePlan)
	fmt.Fprintf(&b, "Hours logged (from keyed store): %s\n", formatFloat(fv[models.FeatureHoursLogged]*models.HoursScale))
	fmt.Fprintf(&b, "Miles logged (from keyed store): %s\n\n", formatFloat(fv[models.FeatureMilesLogged]*models.MilesScale))
	fmt.Fprintf(&b, "Is Foggy? (from weather source): %s\n", models.YesNo(fv[models.FeatureFoggy]))
	fmt.Fprintf(&b, "Is Rainy? (from weather source): %s\n", models.YesNo(fv[models.FeatureRainy]))
	fmt.Fprintf(&b, "Is Windy? (from weather source): %s\n\n", models.YesNo(fv[models.FeatureWindy]))
	fmt.Fprintf(&b, "Input to model: %s\n\n", formatVector(fv))
	fmt.Fprintf(&b, "Prediction from model: %s (%s, probability %s)\n",
		formatFloat(p.Score), p.Label, strconv.FormatFloat(p.Probability, 'f', 4, 64))

	return b.Bytes()
}

func formatVector(fv models.FeatureVector) string {
	parts := make([]string, len(fv))
	for i, v := range fv {
		parts[i] = formatFloat(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
