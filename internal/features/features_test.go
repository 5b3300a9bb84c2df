package features

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"truck-event-scorer/internal/models"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		profile models.DriverProfile
		usage   models.WeeklyUsage
		weather models.Weather
		want    models.FeatureVector
	}{
		{
			name:    "certified hourly driver in rain",
			profile: models.DriverProfile{Certified: true, WagePlanIsMiles: false},
			usage:   models.WeeklyUsage{HoursLogged: 400, MilesLogged: 12000},
			weather: models.Weather{Rainy: true},
			want:    models.FeatureVector{1, 0, 4.0, 12.0, 0, 1, 0},
		},
		{
			name:    "uncertified miles driver in fog and wind",
			profile: models.DriverProfile{WagePlanIsMiles: true},
			usage:   models.WeeklyUsage{HoursLogged: 55, MilesLogged: 3250},
			weather: models.Weather{Foggy: true, Windy: true},
			want:    models.FeatureVector{0, 1, 0.55, 3.25, 1, 0, 1},
		},
		{
			name: "unknown driver",
			want: models.FeatureVector{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Build(&models.Event{}, tc.profile, tc.usage, tc.weather)
			assert.Equal(t, tc.want, got)
		})
	}
}
