// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold/internal/config"
)

// ServiceStatus holds the health information reported by status.
type ServiceStatus struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	metricsAddr string
	jsonOutput  bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running Keyfold server",
		Long:  `Query the readiness endpoint of a running Keyfold server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "metrics/health address of the server")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	status := checkReadiness(cfg.metricsAddr)

	if cfg.jsonOutput {
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(out))
		return nil
	}

	if status.Ready {
		cmd.Println("keyfold: ready")
	} else {
		cmd.Printf("keyfold: not ready (%s)\n", status.Error)
	}
	return nil
}

func checkReadiness(metricsAddr string) ServiceStatus {
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get("http://" + metricsAddr + "/healthz/readiness")
	if err != nil {
		return ServiceStatus{Ready: false, Error: err.Error()}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		_ = resp.Body.Close()                 //nolint:errcheck // read-only response
	}()

	if resp.StatusCode != http.StatusOK {
		return ServiceStatus{Ready: false, Error: fmt.Sprintf("readiness returned %d", resp.StatusCode)}
	}
	return ServiceStatus{Ready: true}
}
