package enrich

import (
	"context"
	"math/rand"
	"sync"

	"truck-event-scorer/internal/models"
)

// WeatherSource resolves ambient conditions for an event
type WeatherSource interface {
	LookupWeatherBias(ctx context.Context, driverID int) (models.Weather, error)
}

// WeatherFunc adapts a function to WeatherSource
type WeatherFunc func(ctx context.Context, driverID int) (models.Weather, error)

// LookupWeatherBias calls f
func (f WeatherFunc) LookupWeatherBias(ctx context.Context, driverID int) (models.Weather, error) {
	return f(ctx, driverID)
}

// WeatherBias holds the percentage chances used by BiasedWeather
type WeatherBias struct {
	// FogByDriver overrides DefaultFog for specific drivers
	FogByDriver map[int]int `yaml:"fog_by_driver" json:"fog_by_driver"`
	DefaultFog  int         `yaml:"default_fog" json:"default_fog"`
	Rain        int         `yaml:"rain" json:"rain"`
	Wind        int         `yaml:"wind" json:"wind"`
}

// DefaultWeatherBias gives two known risky drivers more fog
func DefaultWeatherBias() WeatherBias {
	return WeatherBias{
		FogByDriver: map[int]int{12: 50, 11: 35},
		DefaultFog:  12,
		Rain:        20,
		Wind:        30,
	}
}

// BiasedWeather simulates weather with random draws. It stands in for a
// real weather API.
type BiasedWeather struct {
	bias WeatherBias

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBiasedWeather creates a simulator drawing from a source seeded with seed
func NewBiasedWeather(bias WeatherBias, seed int64) *BiasedWeather {
	return &BiasedWeather{
		bias: bias,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// LookupWeatherBias draws fog, rain and wind for one event
func (w *BiasedWeather) LookupWeatherBias(_ context.Context, driverID int) (models.Weather, error) {
	fog := w.bias.DefaultFog
	if pct, ok := w.bias.FogByDriver[driverID]; ok {
		fog = pct
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	return models.Weather{
		Foggy: w.rng.Intn(100) < fog,
		Rainy: w.rng.Intn(100) < w.bias.Rain,
		Windy: w.rng.Intn(100) < w.bias.Wind,
	}, nil
}

var _ WeatherSource = (*BiasedWeather)(nil)
