// SPDX-License-Identifier: Apache-2.0

// Package tool exposes the classifier as an MCP tool.
package tool

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// ServerName is the implementation name advertised to MCP clients.
const ServerName = "omegaparse"

// NewServer returns an MCP server with every tool registered.
func NewServer(version string, logger logrus.FieldLogger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)
	c := NewClassifier(logger)
	mcp.AddTool(server, MetadataClassifyExportFile, c.ClassifyExportFile)
	return server
}
