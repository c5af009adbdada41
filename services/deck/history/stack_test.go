// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDeck/services/deck/command"
)

// cmd builds a distinguishable command: a reorder whose From carries n.
func cmd(n int) command.Command {
	return command.New(command.ReorderSlides{From: n, To: 0})
}

func froms(cmds []command.Command) []int {
	out := make([]int, len(cmds))
	for i, c := range cmds {
		out[i] = c.Params.(command.ReorderSlides).From
	}
	return out
}

// TestPush_BoundedEvictsOldest pushes five commands into a stack of three.
func TestPush_BoundedEvictsOldest(t *testing.T) {
	s := NewStack(3)
	for i := 1; i <= 5; i++ {
		s.Push(cmd(i))
	}
	assert.Equal(t, 3, s.UndoCount())
	assert.Equal(t, []int{3, 4, 5}, froms(s.Snapshot().UndoStack))
}

// TestPush_Unbounded verifies maxSize 0 keeps everything.
func TestPush_Unbounded(t *testing.T) {
	s := NewStack(0)
	for i := 0; i < 100; i++ {
		s.Push(cmd(i))
	}
	assert.Equal(t, 100, s.UndoCount())
	assert.Equal(t, 0, NewStack(-4).MaxSize())
}

// TestUndoRedo_Order verifies LIFO order across both stacks.
func TestUndoRedo_Order(t *testing.T) {
	s := NewStack(0)
	s.Push(cmd(1))
	s.Push(cmd(2))

	c, ok := s.Undo()
	require.True(t, ok)
	assert.Equal(t, 2, c.Params.(command.ReorderSlides).From)
	assert.Equal(t, 1, s.UndoCount())
	assert.Equal(t, 1, s.RedoCount())
	assert.True(t, s.CanUndo())
	assert.True(t, s.CanRedo())

	c, ok = s.Redo()
	require.True(t, ok)
	assert.Equal(t, 2, c.Params.(command.ReorderSlides).From)
	assert.Equal(t, []int{1, 2}, froms(s.Snapshot().UndoStack))
	assert.False(t, s.CanRedo())
}

// TestPush_ClearsRedo verifies new forward progress drops the redo lineage.
func TestPush_ClearsRedo(t *testing.T) {
	s := NewStack(0)
	s.Push(cmd(1))
	s.Push(cmd(2))
	s.Undo()
	s.Undo()
	require.Equal(t, 2, s.RedoCount())

	s.Push(cmd(3))
	assert.Equal(t, 0, s.RedoCount())
	assert.Equal(t, []int{3}, froms(s.Snapshot().UndoStack))
}

// TestEmpty_Sentinel verifies undo/redo on empty stacks change nothing.
func TestEmpty_Sentinel(t *testing.T) {
	s := NewStack(2)
	_, ok := s.Undo()
	assert.False(t, ok)
	_, ok = s.Redo()
	assert.False(t, ok)

	s.Push(cmd(1))
	_, ok = s.Redo()
	assert.False(t, ok)
	assert.Equal(t, 1, s.UndoCount())
	assert.Equal(t, 0, s.RedoCount())
}

// TestSetHistory_AppliesBound verifies the bound applies to both loaded stacks.
func TestSetHistory_AppliesBound(t *testing.T) {
	s := NewStack(2)
	undo := []command.Command{cmd(1), cmd(2), cmd(3)}
	redo := []command.Command{cmd(7), cmd(8), cmd(9)}
	s.SetHistory(undo, redo)

	snap := s.Snapshot()
	assert.Equal(t, []int{2, 3}, froms(snap.UndoStack))
	assert.Equal(t, []int{8, 9}, froms(snap.RedoStack))

	// The caller's slices are not aliased.
	undo[2] = cmd(42)
	assert.Equal(t, []int{2, 3}, froms(s.Snapshot().UndoStack))
}

// TestSnapshot_IsCopy verifies mutating the stack does not change a snapshot.
func TestSnapshot_IsCopy(t *testing.T) {
	s := NewStack(0)
	s.Push(cmd(1))
	snap := s.Snapshot()
	s.Push(cmd(2))
	s.Clear()
	assert.Equal(t, []int{1}, froms(snap.UndoStack))
	assert.Equal(t, 0, s.UndoCount())
	assert.True(t, s.Snapshot().Empty())
}

// TestSnapshot_JSONShape verifies the persisted field names and round trip.
func TestSnapshot_JSONShape(t *testing.T) {
	s := NewStack(0)
	s.Push(cmd(1))
	s.Push(cmd(2))
	s.Undo()

	raw, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var generic map[string][]map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	require.Len(t, generic["undoStack"], 1)
	require.Len(t, generic["redoStack"], 1)
	assert.Equal(t, "reorderSlides", generic["undoStack"][0]["type"])

	var back Snapshot
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, []int{1}, froms(back.UndoStack))
	assert.Equal(t, []int{2}, froms(back.RedoStack))

	empty, err := json.Marshal(NewStack(0).Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, `{"undoStack":[],"redoStack":[]}`, string(empty))
}
