package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Execute 是命令行入口。
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI: %s\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	server string
	token  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "foodie-cli",
		Short:         "A CLI client for the FoodieTrack API",
		Long:          `A command-line interface for recording food preferences, uploading voice notes and asking for recommendations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.server, "server", envOr("FOODIETRACK_URL", "http://localhost:8000"), "API base URL")
	root.PersistentFlags().StringVar(&flags.token, "token", os.Getenv("FOODIETRACK_TOKEN"), "bearer token")

	root.AddCommand(newPrefsCmd(flags), newRecommendCmd(flags), newVoiceCmd(flags), newTranscriptsCmd(flags))
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
