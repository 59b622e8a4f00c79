package main

import (
	"fmt"
	"net/http"

	"foodietrack/backend/go/internal/models"

	"github.com/spf13/cobra"
)

func newRecommendCmd(flags *globalFlags) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "recommend [candidate]...",
		Short: "Rank candidate dishes against your preferences",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(flags)
			if err != nil {
				return err
			}
			req := map[string]interface{}{"candidates": args, "top_k": topK}
			var out struct {
				Recommendations []models.RecommendationItem `json:"recommendations"`
			}
			if err := c.call(cmd.Context(), http.MethodPost, "/recommendations/", req, &out); err != nil {
				return err
			}
			for i, r := range out.Recommendations {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s (%.2f) %s\n", i+1, r.Item, r.Score, r.Reason)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 3, "number of recommendations to return")
	return cmd
}

func newTranscriptsCmd(flags *globalFlags) *cobra.Command {
	transcriptsCmd := &cobra.Command{
		Use:   "transcripts",
		Short: "Store and search transcripts in the document index",
	}

	storeCmd := &cobra.Command{
		Use:   "store [text]",
		Short: "Store a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(flags)
			if err != nil {
				return err
			}
			var out struct {
				ID string `json:"id"`
			}
			if err := c.call(cmd.Context(), http.MethodPost, "/store-transcript", map[string]string{"text": args[0]}, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored transcript %s\n", out.ID)
			return nil
		},
	}

	var topK int
	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search your stored transcripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(flags)
			if err != nil {
				return err
			}
			req := map[string]interface{}{"query": args[0], "top_k": topK}
			var out struct {
				Results []models.SearchResult `json:"results"`
			}
			if err := c.call(cmd.Context(), http.MethodPost, "/transcripts/search", req, &out); err != nil {
				return err
			}
			for _, r := range out.Results {
				fmt.Fprintf(cmd.OutOrStdout(), "%.3f\t%s\n", r.Score, r.Text)
			}
			return nil
		},
	}
	searchCmd.Flags().IntVar(&topK, "top-k", 5, "number of results")

	transcriptsCmd.AddCommand(storeCmd, searchCmd)
	return transcriptsCmd
}
