package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turku-citybike/racks/internal/config"
)

func main() {
	// .env first, then .env.local overriding it
	config.LoadDotEnv()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "racks",
		Short:         "Turku city bike racks, nearest first",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newListCommand(),
		newPublishLocationCommand(),
	)
	return root
}
