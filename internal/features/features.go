// Package features turns an enriched event into the classifier's input vector.
package features

import "truck-event-scorer/internal/models"

// Build maps enrichment results to the fixed-order, scaled feature vector:
// [certified, wagePlanIsMiles, hours/100, miles/1000, foggy, rainy, windy].
// The event is accepted for symmetry with the scoring pipeline; no feature
// is read from it today.
func Build(_ *models.Event, profile models.DriverProfile, usage models.WeeklyUsage, weather models.Weather) models.FeatureVector {
	var fv models.FeatureVector

	fv[models.FeatureCertified] = flag(profile.Certified)
	fv[models.FeatureWagePlanMiles] = flag(profile.WagePlanIsMiles)
	fv[models.FeatureHoursLogged] = usage.HoursLogged / models.HoursScale
	fv[models.FeatureMilesLogged] = usage.MilesLogged / models.MilesScale
	fv[models.FeatureFoggy] = flag(weather.Foggy)
	fv[models.FeatureRainy] = flag(weather.Rainy)
	fv[models.FeatureWindy] = flag(weather.Windy)

	return fv
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
