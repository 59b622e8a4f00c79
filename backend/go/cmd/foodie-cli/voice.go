package main

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

func newVoiceCmd(flags *globalFlags) *cobra.Command {
	voiceCmd := &cobra.Command{
		Use:   "voice",
		Short: "Upload voice notes for analysis",
	}

	var useLLM bool
	analyzeCmd := &cobra.Command{
		Use:   "analyze [audio-file]",
		Short: "Transcribe a voice note and record the preferences it mentions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(flags)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			if err := mw.WriteField("use_gemini", strconv.FormatBool(useLLM)); err != nil {
				return err
			}
			part, err := mw.CreateFormFile("audio", filepath.Base(args[0]))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, f); err != nil {
				return err
			}
			if err := mw.Close(); err != nil {
				return err
			}

			var out map[string]interface{}
			if err := c.upload(cmd.Context(), "/voice/analyze", mw.FormDataContentType(), &body, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	analyzeCmd.Flags().BoolVar(&useLLM, "llm", true, "use the LLM for analysis instead of keyword extraction")

	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent voice analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(flags)
			if err != nil {
				return err
			}
			var out map[string]interface{}
			if err := c.call(cmd.Context(), http.MethodGet, fmt.Sprintf("/voice/history?limit=%d", limit), nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of analyses")

	voiceCmd.AddCommand(analyzeCmd, historyCmd)
	return voiceCmd
}
