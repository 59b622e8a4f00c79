package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"foodietrack/backend/go/internal/models"

	"github.com/spf13/cobra"
)

func newPrefsCmd(flags *globalFlags) *cobra.Command {
	prefsCmd := &cobra.Command{
		Use:   "prefs",
		Short: "Manage your food preferences",
	}

	var category string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(flags)
			if err != nil {
				return err
			}
			path := "/preferences/"
			if category != "" {
				path += "?category=" + url.QueryEscape(category)
			}
			var out []models.Preference
			if err := c.call(cmd.Context(), http.MethodGet, path, nil, &out); err != nil {
				return err
			}
			for _, p := range out {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n", p.ID, p.Category, p.PreferenceType, p.Value)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&category, "category", "", "only show this category")

	var st models.PreferenceStatement
	addCmd := &cobra.Command{
		Use:   "add [value]",
		Short: "Record a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(flags)
			if err != nil {
				return err
			}
			st.Value = args[0]
			var out models.Preference
			if err := c.call(cmd.Context(), http.MethodPost, "/preferences/", st, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved preference %d: %s %s (%s)\n", out.ID, out.PreferenceType, out.Value, out.Category)
			return nil
		},
	}
	addCmd.Flags().StringVar(&st.PreferenceType, "type", models.DefaultPreferenceType, "preference type, e.g. like, dislike, allergy")
	addCmd.Flags().StringVar(&st.Category, "category", models.DefaultCategory, "preference category")

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid preference id %q", args[0])
			}
			c, err := newAPIClient(flags)
			if err != nil {
				return err
			}
			if err := c.call(cmd.Context(), http.MethodDelete, "/preferences/"+strconv.FormatUint(id, 10), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted preference %d\n", id)
			return nil
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Print preferences in the LLM-friendly export format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(flags)
			if err != nil {
				return err
			}
			var out models.PreferencesExport
			if err := c.call(cmd.Context(), http.MethodGet, "/preferences/export", nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	prefsCmd.AddCommand(listCmd, addCmd, deleteCmd, exportCmd)
	return prefsCmd
}
