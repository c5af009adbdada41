// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history holds the undo/redo command sequences of one document.
//
// The stack never looks inside a command and never touches a deck.
package history

import (
	"github.com/AleutianAI/AleutianDeck/services/deck/command"
)

// Snapshot is the order-preserving, serializable form of a Stack. Both
// slices are oldest first. It is also the persistence record.
type Snapshot struct {
	UndoStack []command.Command `json:"undoStack"`
	RedoStack []command.Command `json:"redoStack"`
}

// Empty reports whether the snapshot holds no commands.
func (s Snapshot) Empty() bool {
	return len(s.UndoStack) == 0 && len(s.RedoStack) == 0
}

// Stack is a bounded undo/redo stack of commands.
//
// # Description
//
// Push appends to the undo stack and drops every redo entry. When maxSize
// is positive the stack keeps only the maxSize most recent entries,
// evicting from the oldest end.
//
// # Thread Safety
//
// Not safe for concurrent use. The owning engine serializes access.
type Stack struct {
	undo    []command.Command
	redo    []command.Command
	maxSize int
}

// NewStack creates a stack. maxSize <= 0 means unbounded.
func NewStack(maxSize int) *Stack {
	if maxSize < 0 {
		maxSize = 0
	}
	return &Stack{
		undo:    []command.Command{},
		redo:    []command.Command{},
		maxSize: maxSize,
	}
}

// MaxSize returns the configured bound (0 = unbounded).
func (s *Stack) MaxSize() int {
	return s.maxSize
}

// Push records a newly applied command and clears the redo stack.
func (s *Stack) Push(cmd command.Command) {
	s.undo = append(s.undo, cmd)
	s.undo = s.bound(s.undo)
	s.redo = s.redo[:0]
}

// Undo moves the most recent command to the redo stack and returns it.
// ok is false when there is nothing to undo; both stacks are then unchanged.
func (s *Stack) Undo() (cmd command.Command, ok bool) {
	if len(s.undo) == 0 {
		return command.Command{}, false
	}
	cmd = s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, cmd)
	s.redo = s.bound(s.redo)
	return cmd, true
}

// Redo moves the most recently undone command back to the undo stack and
// returns it. ok is false when there is nothing to redo.
func (s *Stack) Redo() (cmd command.Command, ok bool) {
	if len(s.redo) == 0 {
		return command.Command{}, false
	}
	cmd = s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, cmd)
	s.undo = s.bound(s.undo)
	return cmd, true
}

// SetHistory replaces both stacks, as when a session is loaded from
// storage. The bound is re-applied to each.
func (s *Stack) SetHistory(undo, redo []command.Command) {
	s.undo = s.bound(append([]command.Command{}, undo...))
	s.redo = s.bound(append([]command.Command{}, redo...))
}

// Snapshot returns a copy of both stacks.
func (s *Stack) Snapshot() Snapshot {
	return Snapshot{
		UndoStack: append([]command.Command{}, s.undo...),
		RedoStack: append([]command.Command{}, s.redo...),
	}
}

// Clear empties both stacks.
func (s *Stack) Clear() {
	s.undo = []command.Command{}
	s.redo = []command.Command{}
}

// UndoCount returns the number of commands that can be undone.
func (s *Stack) UndoCount() int { return len(s.undo) }

// RedoCount returns the number of commands that can be redone.
func (s *Stack) RedoCount() int { return len(s.redo) }

// CanUndo reports whether the undo stack is non-empty.
func (s *Stack) CanUndo() bool { return len(s.undo) > 0 }

// CanRedo reports whether the redo stack is non-empty.
func (s *Stack) CanRedo() bool { return len(s.redo) > 0 }

// bound drops the oldest entries beyond maxSize. It copies so the dropped
// prefix does not pin the backing array.
func (s *Stack) bound(cmds []command.Command) []command.Command {
	if s.maxSize == 0 || len(cmds) <= s.maxSize {
		return cmds
	}
	return append([]command.Command{}, cmds[len(cmds)-s.maxSize:]...)
}
