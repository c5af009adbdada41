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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDeck/services/deck/command"
	"github.com/AleutianAI/AleutianDeck/services/deck/history"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage/backend"
)

// documentReport summarizes one stored document.
type documentReport struct {
	DocumentID string         `json:"documentId"`
	Title      string         `json:"title"`
	Theme      string         `json:"theme"`
	Slides     []slideSummary `json:"slides"`
	UndoCount  int            `json:"undoCount"`
	RedoCount  int            `json:"redoCount"`
	LastUndo   command.Type   `json:"lastUndo,omitempty"`
	LastEdit   *time.Time     `json:"lastEdit,omitempty"`
}

type slideSummary struct {
	Number   int    `json:"number"`
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Elements int    `json:"elements"`
	Hidden   bool   `json:"hidden,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logs, err := newLogger(cfg.Logging, debugMode)
	if err != nil {
		return err
	}
	defer logs.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	gw, err := backend.Open(ctx, cfg.Storage, logs.Slog())
	if err != nil {
		return err
	}
	defer gw.Close()

	report, err := inspectDocument(ctx, gw, args[0])
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), report, jsonOutput)
}

// inspectDocument reads the persisted deck and history of docID. A
// document with a deck but no history record reports empty stacks.
func inspectDocument(ctx context.Context, gw storage.Gateway, docID string) (documentReport, error) {
	deck, err := gw.LoadDeck(ctx, docID)
	if err != nil {
		return documentReport{}, fmt.Errorf("load deck %s: %w", docID, err)
	}
	snap, err := gw.LoadHistory(ctx, docID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		snap = history.Snapshot{}
	case err != nil:
		return documentReport{}, fmt.Errorf("load history %s: %w", docID, err)
	}

	r := documentReport{
		DocumentID: docID,
		Title:      deck.Meta.Title,
		Theme:      deck.Settings.Theme,
		Slides:     make([]slideSummary, 0, len(deck.Slides)),
		UndoCount:  len(snap.UndoStack),
		RedoCount:  len(snap.RedoStack),
	}
	for _, s := range deck.Slides {
		r.Slides = append(r.Slides, slideSummary{
			Number:   s.Number,
			ID:       s.ID,
			Title:    s.Title,
			Elements: len(s.Elements),
			Hidden:   s.Hidden,
		})
	}
	if n := len(snap.UndoStack); n > 0 {
		last := snap.UndoStack[n-1]
		r.LastUndo = last.Type
		ts := last.Timestamp
		r.LastEdit = &ts
	}
	return r, nil
}

func writeReport(w io.Writer, r documentReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(w, "Document: %s\n", r.DocumentID)
	fmt.Fprintf(w, "Title:    %s\n", r.Title)
	fmt.Fprintf(w, "Theme:    %s\n", r.Theme)
	fmt.Fprintf(w, "History:  %d undo, %d redo\n", r.UndoCount, r.RedoCount)
	if r.LastEdit != nil {
		fmt.Fprintf(w, "Last:     %s at %s\n", r.LastUndo, r.LastEdit.Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tTITLE\tELEMENTS\tHIDDEN")
	for _, s := range r.Slides {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\n", s.Number, s.ID, s.Title, s.Elements, s.Hidden)
	}
	return tw.Flush()
}
