package main

import (
	"fmt"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/pkg/config"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		sim      simulation
		logLevel string
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Register groups and race concurrent requesters for their seats",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(&logger.Config{Level: logLevel, ServiceName: "booking-simulator"}); err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if sim.Seed == 0 {
				sim.Seed = uint64(time.Now().UnixNano())
			}

			fmt.Fprintf(cmd.OutOrStdout(), "simulating %d users over %d groups of %d seats (seed %d)\n\n",
				sim.Users, sim.Groups, sim.Seats, sim.Seed)

			rep, err := sim.run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			rep.print(cmd.OutOrStdout())

			if len(rep.Violations) > 0 {
				return fmt.Errorf("%d booking invariant violations", len(rep.Violations))
			}
			return nil
		},
	}

	f := c.Flags()
	f.IntVar(&sim.Groups, "groups", 2, "number of resource groups")
	f.IntVar(&sim.Seats, "seats", 50, "seats per group")
	f.IntVar(&sim.Users, "users", 200, "concurrent requesters")
	f.IntVar(&sim.SeatsPerUser, "seats-per-user", 2, "adjacent seats each requester wants")
	f.IntVar(&sim.Concurrency, "concurrency", 64, "maximum requests in flight (0 = unlimited)")
	f.DurationVar(&sim.TTL, "ttl", 2*time.Second, "hold TTL")
	f.DurationVar(&sim.PaymentDelay, "payment-delay", 50*time.Millisecond, "simulated gateway latency")
	f.Float64Var(&sim.SuccessRate, "success-rate", 0.9, "probability a payment succeeds")
	f.StringVar(&sim.Pricing, "pricing", "", "pricing policy (standard, weekday, weekend, calendar)")
	f.Uint64Var(&sim.Seed, "seed", 0, "random seed (0 = time based)")
	f.StringVar(&logLevel, "log-level", "warn", "log level")
	return c
}
