// Package mcp provides an MCP (Model Context Protocol) server adapter for Folio.
// It lets AI assistants search indexed PDFs, ask grounded questions and read
// document metadata and text.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")
