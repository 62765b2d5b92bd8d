package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turku-citybike/racks/internal/config"
	"github.com/turku-citybike/racks/internal/geo"
	"github.com/turku-citybike/racks/internal/location"
)

func newPublishLocationCommand() *cobra.Command {
	var lat, lon float64
	var failure string

	cmd := &cobra.Command{
		Use:   "publish-location",
		Short: "Publish a user position, or a location failure, on the Redis channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			client, err := location.NewRedisClient(cfg.Location.RedisAddr, cfg.Location.RedisPassword)
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			defer client.Close()
			publisher := location.NewRedis(client, cfg.Location.Channel, nil)

			if failure != "" {
				f, err := location.ParseFailure(failure)
				if err != nil {
					return err
				}
				return publisher.PublishFailure(cmd.Context(), f)
			}

			c := geo.Coordinate{Latitude: lat, Longitude: lon}
			if !c.Valid() {
				return fmt.Errorf("invalid coordinate %s", c)
			}
			if err := publisher.Publish(cmd.Context(), c); err != nil {
				return fmt.Errorf("failed to publish location: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	cmd.Flags().StringVar(&failure, "failure", "", "publish not_authorized or location_disabled instead of a position")
	cmd.MarkFlagsRequiredTogether("lat", "lon")
	cmd.MarkFlagsOneRequired("lat", "failure")
	cmd.MarkFlagsMutuallyExclusive("lat", "failure")
	return cmd
}
