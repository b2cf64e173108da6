package main

import (
	"github.com/spf13/cobra"

	"github.com/nvandessel/flightbreak/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the
generate_trajectory, estimate_probabilities and list_runs tools.

Logs go to stderr; stdout carries the protocol. Tool calls are recorded in
.flightbreak/audit.jsonl.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "flightbreak",
				Version:  version,
				StateDir: env.stateDir,
				Settings: env.cfg,
				Logger:   env.logger,
				RunLog:   env.runLog,
			})
			if err != nil {
				return err
			}

			return server.Run(cmd.Context())
		},
	}
}
