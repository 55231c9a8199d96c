// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/omegaparse/omegaparse/internal/config"
	"github.com/omegaparse/omegaparse/internal/logging"
	"github.com/omegaparse/omegaparse/internal/tool"
	"github.com/omegaparse/omegaparse/internal/version"
)

func newMCPCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the classify_export_file tool over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile, opts.envFiles...)
			if err != nil {
				return err
			}
			level, format := cfg.LogLevel, cfg.LogFormat
			if opts.logLevel != "" {
				level = opts.logLevel
			}
			if opts.logFormat != "" {
				format = opts.logFormat
			}
			// stdout carries the protocol; logs go to stderr
			logger := logging.NewLoggerTo(cmd.ErrOrStderr(), level, format)
			logger.WithField("version", version.Version).Info("starting MCP server on stdio")

			server := tool.NewServer(version.Version, logger)
			return server.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}
