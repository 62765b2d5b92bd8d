package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/turku-citybike/racks/internal/api"
	"github.com/turku-citybike/racks/internal/citybike"
	"github.com/turku-citybike/racks/internal/config"
	"github.com/turku-citybike/racks/internal/geo"
	"github.com/turku-citybike/racks/internal/logging"
	"github.com/turku-citybike/racks/internal/racklist"
)

// errFetchFailed is returned after the user-facing message was already printed
var errFetchFailed = errors.New("fetch failed")

type listOptions struct {
	lat, lon float64
	asJSON   bool
}

func newListCommand() *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch the feed once and print the racks",
		Long: "Fetch the feed once and print the racks ordered by name, or by distance\n" +
			"when --lat and --lon are given.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var origin *geo.Coordinate
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
				if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
					return errors.New("--lat and --lon must be given together")
				}
				c := geo.Coordinate{Latitude: opts.lat, Longitude: opts.lon}
				if !c.Valid() {
					return fmt.Errorf("invalid coordinate %s", c)
				}
				origin = &c
			}
			return runList(cmd.Context(), cmd.OutOrStdout(), origin, opts.asJSON)
		},
	}

	cmd.Flags().Float64Var(&opts.lat, "lat", 0, "latitude of the user")
	cmd.Flags().Float64Var(&opts.lon, "lon", 0, "longitude of the user")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the list as JSON")
	return cmd
}

func runList(ctx context.Context, out io.Writer, origin *geo.Coordinate, asJSON bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.NewConsoleLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	client := citybike.NewClient(cfg.CitybikeURL, nil, cfg.HTTPTimeout(), logger.Named("citybike"))
	return printList(ctx, out, client, origin, asJSON)
}

// printList runs one fetch through the state machine and renders the result
func printList(ctx context.Context, out io.Writer, fetcher racklist.Fetcher, origin *geo.Coordinate, asJSON bool) error {
	m := racklist.NewMachine()
	if origin != nil {
		m.UpdateCoordinate(*origin)
	}

	seq := m.BeginFetch()
	dir, err := fetcher.Fetch(ctx)
	m.CompleteFetch(seq, dir, err)

	view := racklist.View{
		Version:    1,
		State:      m.State().Name(),
		Items:      m.Items(),
		Directory:  dir,
		Coordinate: m.Coordinate(),
		LastError:  err,
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(api.NewListResponse(view)); encErr != nil {
			return encErr
		}
	} else {
		renderTable(out, view.Items)
	}

	if err != nil {
		return errFetchFailed
	}
	return nil
}

func renderTable(out io.Writer, items []racklist.Item) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "NAME\tBIKES\tELECTRIC\tCAPACITY\tDISTANCE")
	for _, item := range items {
		switch it := item.(type) {
		case racklist.RackItem:
			distance := ""
			if it.DistanceMeters != nil {
				distance = geo.FormatDistance(*it.DistanceMeters)
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
				it.Rack.Name, it.Rack.AvailableBikes(), it.Rack.ElectricBikes, it.Rack.Capacity(), distance)
		case racklist.ErrorItem:
			fmt.Fprintln(w, it.Message)
		}
	}
}
