// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	port       int
	debugMode  bool
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:   "deckd",
		Short: "Slide deck editing service with undo/redo and live sync",
		Long: `deckd hosts slide deck documents. Edits are applied as commands,
recorded in a bounded undo/redo history, persisted in the background and
broadcast to every viewer of the document over SSE or websocket.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect [document-id]",
		Short: "Print the stored state and history of a document",
		Long: `inspect reads a document straight from the configured storage backend.
Badger holds an exclusive directory lock, so stop a running deckd first or
point --config at a copy of the data directory.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "deckd.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging and gin debug mode")

	serveCmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides config)")
	inspectCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
}
