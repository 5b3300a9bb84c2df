package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"truck-event-scorer/internal/db"
	"truck-event-scorer/internal/models"
	"truck-event-scorer/internal/modelstore"
	"truck-event-scorer/internal/parser"
)

var sampleDrivers = []models.Driver{
	{DriverID: 10, Name: "Dan Miller", Certified: "Y", WagePlan: "miles"},
	{DriverID: 11, Name: "George Ortiz", Certified: "Y", WagePlan: "hours"},
	{DriverID: 12, Name: "Jamie Engesser", Certified: "N", WagePlan: "miles"},
	{DriverID: 13, Name: "Paul Reyes", Certified: "Y", WagePlan: "hours"},
	{DriverID: 14, Name: "Joe Turner", Certified: "N", WagePlan: "hours"},
	{DriverID: 15, Name: "Ana Kowalski", Certified: "Y", WagePlan: "miles"},
}

var sampleRoutes = []struct {
	id   int
	name string
	lat  float64
	lon  float64
}{
	{160405074, "Joplin to Kansas City", 37.09, -94.23},
	{1565885487, "Springfield to KC Via Hanibal", 39.71, -91.37},
	{1390372503, "Saint Louis to Tulsa", 37.31, -93.83},
	{1962261785, "Peoria to Ceder Rapids", 41.36, -90.74},
	{1594289134, "Memphis to Little Rock", 35.12, -91.55},
}

var sampleEventTypes = []string{
	"Normal", "Normal", "Normal", "Normal", "Normal", "Normal", "Normal",
	"Overspeed", "Lane Departure", "Unsafe following distance", "Unsafe tail distance",
}

// sampleWeights favor violations for uncertified hourly drivers in bad weather
var (
	sampleWeights   = []float64{-0.85, -0.4, 1.9, 0.21, 1.35, 0.75, 0.6}
	sampleIntercept = -1.2
)

// seedCmd loads sample drivers and timesheets into the keyed store
func seedCmd() *cobra.Command {
	var weeks int
	var writeModel bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sample drivers and timesheets into the keyed store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			database, err := db.New(ctx, cfg.KeyedStore.Driver, cfg.KeyedStore.DSN())
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			if err := database.Migrate(ctx); err != nil {
				return fmt.Errorf("migration error: %w", err)
			}

			for _, d := range sampleDrivers {
				if err := database.UpsertDriver(ctx, d); err != nil {
					return fmt.Errorf("error creating driver %d: %w", d.DriverID, err)
				}
			}
			fmt.Printf("Created %d drivers\n", len(sampleDrivers))

			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			var rows []models.Timesheet
			for _, d := range sampleDrivers {
				for week := 1; week <= weeks; week++ {
					rows = append(rows, models.Timesheet{
						DriverID:    d.DriverID,
						Week:        week,
						HoursLogged: 40 + rng.Intn(30),
						MilesLogged: 2000 + rng.Intn(1500),
					})
				}
			}

			start := time.Now()
			count, err := database.UpsertTimesheetBatch(ctx, rows)
			if err != nil {
				return fmt.Errorf("error inserting timesheets: %w", err)
			}
			elapsed := time.Since(start)
			fmt.Printf("✓ Inserted %d timesheet rows in %v\n", count, elapsed)

			if writeModel {
				store, closeStore, err := openArtifacts(ctx, nil)
				if err != nil {
					return err
				}
				defer closeStore()

				if err := modelstore.Save(ctx, store, cfg.Model.Location, sampleWeights, sampleIntercept); err != nil {
					return err
				}
				fmt.Printf("✓ Wrote sample model to %s\n", cfg.Model.Location)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&weeks, "weeks", "w", 53, "Number of ISO weeks of timesheets per driver")
	cmd.Flags().BoolVarP(&writeModel, "model", "m", false, "Also write a sample model to the artifact store")
	return cmd
}

// generateCmd writes sample pipe-delimited truck events
func generateCmd() *cobra.Command {
	var count int
	var output string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sample truck events",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			out := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("error creating output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			baseTime := time.Now().In(loc).Add(-24 * time.Hour).Truncate(time.Second)

			for i := 0; i < count; i++ {
				d := sampleDrivers[rng.Intn(len(sampleDrivers))]
				r := sampleRoutes[rng.Intn(len(sampleRoutes))]
				e := &models.Event{
					EventTime:     baseTime.Add(time.Duration(i) * time.Second),
					TruckID:       rng.Intn(100) + 1,
					DriverID:      d.DriverID,
					DriverName:    d.Name,
					RouteID:       r.id,
					RouteName:     r.name,
					EventType:     sampleEventTypes[rng.Intn(len(sampleEventTypes))],
					Latitude:      r.lat + (rng.Float64()-0.5)*0.5,
					Longitude:     r.lon + (rng.Float64()-0.5)*0.5,
					CorrelationID: int64(i + 1),
				}
				if _, err := fmt.Fprintf(out, "%s\n", parser.Encode(e)); err != nil {
					return err
				}
			}

			if output != "" {
				fmt.Printf("✓ Generated %d events to %s\n", count, output)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 100, "Number of events to generate")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write events to file instead of stdout")
	return cmd
}
