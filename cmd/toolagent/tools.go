// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/toolagent/internal/api"
	"github.com/tomtom215/toolagent/internal/logging"
	"github.com/tomtom215/toolagent/internal/store"
)

func newToolsCommand() *cobra.Command {
	tools := &cobra.Command{
		Use:   "tools",
		Short: "Inspect installed tools",
	}

	var (
		addr     string
		storeDir string
		asJSON   bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List installed tools and their supervision state",
		Long: "List installed tools. By default the running agent's local API is queried.\n" +
			"With --store-dir the store is read directly; the agent must be stopped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			var (
				views []api.ToolView
				err   error
			)
			if storeDir != "" {
				views, err = listFromStore(ctx, storeDir)
			} else {
				views, err = listFromAPI(ctx, addr)
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}
			return printTools(cmd.OutOrStdout(), views)
		},
	}
	list.Flags().StringVar(&addr, "addr", "http://127.0.0.1:9465", "base URL of the agent's local API")
	list.Flags().StringVar(&storeDir, "store-dir", "", "read the store directory directly instead of the API")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	tools.AddCommand(list)
	return tools
}

func listFromAPI(ctx context.Context, addr string) ([]api.ToolView, error) {
	endpoint := strings.TrimRight(addr, "/") + "/v1/tools"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query agent at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var body struct {
		Data  []api.ToolView `json:"data"`
		Error *api.Error     `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if body.Error != nil {
			return nil, fmt.Errorf("agent returned %d: %s", resp.StatusCode, body.Error.Message)
		}
		return nil, fmt.Errorf("agent returned %d", resp.StatusCode)
	}
	return body.Data, nil
}

func listFromStore(ctx context.Context, dir string) ([]api.ToolView, error) {
	st, err := store.Open(dir, logging.Nop())
	if err != nil {
		return nil, err
	}
	defer st.Close()

	records, err := st.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]api.ToolView, 0, len(records))
	for _, rec := range records {
		views = append(views, api.ToolView{InstalledTool: rec})
	}
	return views, nil
}

func printTools(w io.Writer, views []api.ToolView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tVERSION\tSTATUS\tSUPERVISED\tRUNNING\tRUNS\tINSTALLED")
	for _, v := range views {
		running, runs := "-", "-"
		if v.State != nil {
			running = fmt.Sprintf("%t", v.State.Running)
			runs = fmt.Sprintf("%d", v.State.Runs)
		}
		installed := "-"
		if !v.InstalledAt.IsZero() {
			installed = v.InstalledAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
			v.ToolID, v.Version, v.Status, v.Supervised, running, runs, installed)
	}
	return tw.Flush()
}
