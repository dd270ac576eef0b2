package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "booking-simulator",
		Short: "Drive concurrent reservations against an in-process reservation service",
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newTokenCmd())

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
