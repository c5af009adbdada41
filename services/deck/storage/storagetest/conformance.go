// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storagetest holds the behaviour suite every storage.Gateway
// backend runs in its own tests.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDeck/services/deck/command"
	"github.com/AleutianAI/AleutianDeck/services/deck/history"
	"github.com/AleutianAI/AleutianDeck/services/deck/model"
	"github.com/AleutianAI/AleutianDeck/services/deck/storage"
)

// Factory returns a fresh, empty gateway. The suite closes it.
type Factory func(t *testing.T) storage.Gateway

// SampleDeck returns a deck with one text element on its only slide, plus
// the prepared command that added it.
func SampleDeck(t *testing.T) (*model.Deck, command.Command) {
	t.Helper()
	d := model.NewDeck("sample")
	cmd, err := command.New(command.AddElement{
		SlideID: d.Slides[0].ID,
		Element: model.Element{
			ID:     "title",
			Kind:   model.KindText,
			Bounds: model.Bounds{X: 10, Y: 20, Width: 300, Height: 60},
			Style:  model.Style{"fontSize": 32.0},
			Text:   &model.TextContent{Text: "Hello"},
		},
	}).Prepare(d)
	require.NoError(t, err)
	require.NoError(t, cmd.Apply(d))
	return d, cmd
}

// Run executes the gateway behaviour suite.
func Run(t *testing.T, newGateway Factory) {
	ctx := context.Background()

	t.Run("missing records are ErrNotFound", func(t *testing.T) {
		g := newGateway(t)
		defer g.Close()

		_, err := g.LoadDeck(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = g.LoadHistory(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("deck round trip", func(t *testing.T) {
		g := newGateway(t)
		defer g.Close()

		d, _ := SampleDeck(t)
		require.NoError(t, g.SaveDeck(ctx, "doc-1", d))
		got, err := g.LoadDeck(ctx, "doc-1")
		require.NoError(t, err)
		assert.True(t, model.Equal(d, got))
		assert.True(t, d.Meta.CreatedAt.Equal(got.Meta.CreatedAt))
	})

	t.Run("history round trip keeps order and pre-images", func(t *testing.T) {
		g := newGateway(t)
		defer g.Close()

		d, add := SampleDeck(t)
		before := d.Clone()
		require.NoError(t, add.Revert(before))

		s := history.NewStack(0)
		s.Push(add)
		move := command.New(command.ReorderSlides{From: 0, To: 0})
		s.Push(move)
		s.Undo()

		require.NoError(t, g.SaveHistory(ctx, "doc-1", s.Snapshot()))
		got, err := g.LoadHistory(ctx, "doc-1")
		require.NoError(t, err)
		require.Len(t, got.UndoStack, 1)
		require.Len(t, got.RedoStack, 1)
		assert.Equal(t, command.TypeAddElement, got.UndoStack[0].Type)
		assert.Equal(t, command.TypeReorderSlides, got.RedoStack[0].Type)

		require.NoError(t, got.UndoStack[0].Revert(d))
		assert.True(t, model.Equal(before, d))
	})

	t.Run("save overwrites", func(t *testing.T) {
		g := newGateway(t)
		defer g.Close()

		d1 := model.NewDeck("first")
		d2 := model.NewDeck("second")
		require.NoError(t, g.SaveDeck(ctx, "doc", d1))
		require.NoError(t, g.SaveDeck(ctx, "doc", d2))
		require.NoError(t, g.SaveDeck(ctx, "doc", d2))
		got, err := g.LoadDeck(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, "second", got.Meta.Title)

		require.NoError(t, g.SaveHistory(ctx, "doc", history.Snapshot{}))
		snap, err := g.LoadHistory(ctx, "doc")
		require.NoError(t, err)
		assert.True(t, snap.Empty())
	})

	t.Run("documents are independent", func(t *testing.T) {
		g := newGateway(t)
		defer g.Close()

		require.NoError(t, g.SaveDeck(ctx, "a", model.NewDeck("a")))
		require.NoError(t, g.SaveDeck(ctx, "b", model.NewDeck("b")))
		got, err := g.LoadDeck(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "a", got.Meta.Title)
	})

	t.Run("delete removes both records", func(t *testing.T) {
		g := newGateway(t)
		defer g.Close()

		require.NoError(t, g.SaveDeck(ctx, "doc", model.NewDeck("x")))
		require.NoError(t, g.SaveHistory(ctx, "doc", history.Snapshot{}))
		require.NoError(t, g.Delete(ctx, "doc"))
		require.NoError(t, g.Delete(ctx, "doc"))

		_, err := g.LoadDeck(ctx, "doc")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = g.LoadHistory(ctx, "doc")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
