// Package modelstore loads trained classifier weights from the artifact store.
//
// The artifact is one or more text parts, each holding newline-delimited
// floats. Parts are read in listing order; the last value overall is the
// intercept and all earlier values are the weights. Parts whose name starts
// with "_" or "." are control markers (e.g. _SUCCESS) and are skipped.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"truck-event-scorer/internal/artifact"
	"truck-event-scorer/internal/classifier"
)

// ErrModelLoad is returned when a model cannot be loaded from its location
var ErrModelLoad = errors.New("model load failed")

// Load reads and parses the model stored at location
func Load(ctx context.Context, store artifact.Store, location string) (*classifier.Classifier, error) {
	entries, err := store.List(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	var values []float64
	parts := 0

	for _, entry := range entries {
		if isControl(entry.Base()) {
			continue
		}

		data, err := store.Read(ctx, entry.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
		}

		vals, err := parsePart(string(data))
		if err != nil {
			return nil, fmt.Errorf("%w: part %s: %v", ErrModelLoad, entry.Name, err)
		}

		values = append(values, vals...)
		parts++
	}

	if parts == 0 {
		return nil, fmt.Errorf("%w: no readable parts at %s", ErrModelLoad, location)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no values at %s", ErrModelLoad, location)
	}

	n := len(values) - 1
	return classifier.New(values[:n], values[n]), nil
}

func isControl(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}

// parsePart parses newline-delimited floats. Trailing newlines are ignored;
// a blank line between values is an error.
func parsePart(raw string) ([]float64, error) {
	raw = strings.TrimRight(raw, "\r\n")
	if raw == "" {
		return nil, nil
	}

	lines := strings.Split(raw, "\n")
	values := make([]float64, 0, len(lines))

	for i, line := range lines {
		v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		values = append(values, v)
	}

	return values, nil
}

// Loader loads the model once and hands out the cached classifier after that
type Loader struct {
	store  artifact.Store
	logger zerolog.Logger

	mu    sync.Mutex
	model *classifier.Classifier
}

// NewLoader creates a loader backed by store
func NewLoader(store artifact.Store, logger zerolog.Logger) *Loader {
	return &Loader{
		store:  store,
		logger: logger.With().Str("component", "modelstore").Logger(),
	}
}

// Load returns the cached classifier if one was loaded before; otherwise it
// loads from location. Later calls never replace a loaded model.
func (l *Loader) Load(ctx context.Context, location string) (*classifier.Classifier, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.model != nil {
		l.logger.Debug().Str("location", location).Msg("Model already loaded, using cached classifier")
		return l.model, nil
	}

	model, err := Load(ctx, l.store, location)
	if err != nil {
		l.logger.Error().Err(err).Str("location", location).Msg("Failed to load model")
		return nil, err
	}

	l.model = model
	l.logger.Info().
		Str("location", location).
		Int("features", model.NumFeatures()).
		Float64("intercept", model.Intercept()).
		Msg("Model loaded")

	return model, nil
}

// Save writes weights and intercept as a single part followed by a _SUCCESS
// marker, the layout Load reads.
func Save(ctx context.Context, store artifact.Store, location string, weights []float64, intercept float64) error {
	var b strings.Builder
	for _, w := range weights {
		b.WriteString(strconv.FormatFloat(w, 'g', -1, 64))
		b.WriteByte('\n')
	}
	b.WriteString(strconv.FormatFloat(intercept, 'g', -1, 64))
	b.WriteByte('\n')

	location = artifact.Clean(location)
	if err := store.Write(ctx, location+"/part-00000", []byte(b.String())); err != nil {
		return fmt.Errorf("failed to write model part: %w", err)
	}
	if err := store.Write(ctx, location+"/_SUCCESS", nil); err != nil {
		return fmt.Errorf("failed to write model marker: %w", err)
	}
	return nil
}
