// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package command

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianDeck/services/deck/model"
)

// =============================================================================
// groupElements
// =============================================================================

// GroupElements replaces two or more top-level elements of one slide with a
// single group element placed at the lowest member's z-order position.
//
// Prepare captures the slide, the members in z-order and their original
// indices so undo puts every member back where it was.
type GroupElements struct {
	ElementIDs []string        `json:"elementIds" validate:"min=2,unique,dive,required"`
	GroupID    string          `json:"groupId,omitempty"`
	SlideID    string          `json:"slideId,omitempty"`
	Indices    []int           `json:"indices,omitempty"`
	Members    []model.Element `json:"members,omitempty"`
}

func (GroupElements) CommandType() Type { return TypeGroupElements }

func (p GroupElements) prepare(d *model.Deck) (Params, error) {
	if len(p.ElementIDs) < 2 {
		return nil, fmt.Errorf("%w: a group needs at least two elements", ErrInvalidParams)
	}
	slideIdx := -1
	indices := make([]int, 0, len(p.ElementIDs))
	seen := make(map[string]struct{}, len(p.ElementIDs))
	for _, id := range p.ElementIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: element %s listed twice", ErrInvalidParams, id)
		}
		seen[id] = struct{}{}
		si, ei, ok := d.LocateElement(id)
		if !ok {
			return nil, fmt.Errorf("%w: element %s", ErrTargetNotFound, id)
		}
		if slideIdx >= 0 && si != slideIdx {
			return nil, fmt.Errorf("%w: grouped elements must share a slide", ErrInvalidParams)
		}
		slideIdx = si
		indices = append(indices, ei)
	}
	sort.Ints(indices)

	groupID := p.GroupID
	if groupID == "" {
		groupID = uuid.NewString()
	}
	if d.HasID(groupID) {
		return nil, fmt.Errorf("%w: id %s already exists", ErrInvalidParams, groupID)
	}

	s := &d.Slides[slideIdx]
	members := make([]model.Element, len(indices))
	for i, idx := range indices {
		members[i] = s.Elements[idx].Clone()
	}
	return GroupElements{
		ElementIDs: append([]string(nil), p.ElementIDs...),
		GroupID:    groupID,
		SlideID:    s.ID,
		Indices:    indices,
		Members:    members,
	}, nil
}

func (p GroupElements) group() model.Element {
	children := make([]model.Element, len(p.Members))
	for i := range p.Members {
		children[i] = p.Members[i].Clone()
	}
	return model.Element{
		ID:     p.GroupID,
		Kind:   model.KindGroup,
		Bounds: model.UnionBounds(children),
		Group:  &model.GroupContent{Children: children},
	}
}

func (p GroupElements) apply(d *model.Deck) error {
	if len(p.Indices) == 0 || len(p.Indices) != len(p.Members) {
		return fmt.Errorf("%w: groupElements", ErrNotPrepared)
	}
	s, err := slideByID(d, p.SlideID)
	if err != nil {
		return err
	}
	for i := len(p.Indices) - 1; i >= 0; i-- {
		idx := p.Indices[i]
		if idx >= len(s.Elements) || s.Elements[idx].ID != p.Members[i].ID {
			return fmt.Errorf("%w: element %s not at index %d", ErrTargetNotFound, p.Members[i].ID, idx)
		}
		s.RemoveElement(idx)
	}
	s.InsertElement(p.Indices[0], p.group())
	return nil
}

func (p GroupElements) revert(d *model.Deck) error {
	if len(p.Indices) == 0 || len(p.Indices) != len(p.Members) {
		return fmt.Errorf("%w: groupElements", ErrNotPrepared)
	}
	s, err := slideByID(d, p.SlideID)
	if err != nil {
		return err
	}
	at := s.ElementIndex(p.GroupID)
	if at < 0 {
		return fmt.Errorf("%w: group %s", ErrTargetNotFound, p.GroupID)
	}
	s.RemoveElement(at)
	for i, idx := range p.Indices {
		if idx > len(s.Elements) {
			return fmt.Errorf("%w: element index %d", ErrIndexOutOfRange, idx)
		}
		s.InsertElement(idx, p.Members[i].Clone())
	}
	return nil
}

// =============================================================================
// ungroupElements
// =============================================================================

// UngroupElements replaces a top-level group with its children, which take
// the group's z-order position in order.
type UngroupElements struct {
	GroupID string         `json:"groupId" validate:"required"`
	SlideID string         `json:"slideId,omitempty"`
	Index   *int           `json:"index,omitempty"`
	Group   *model.Element `json:"group,omitempty"`
}

func (UngroupElements) CommandType() Type { return TypeUngroupElements }

func (p UngroupElements) prepare(d *model.Deck) (Params, error) {
	si, ei, ok := d.LocateElement(p.GroupID)
	if !ok {
		return nil, fmt.Errorf("%w: group %s", ErrTargetNotFound, p.GroupID)
	}
	g := d.Slides[si].Elements[ei]
	if g.Kind != model.KindGroup || g.Group == nil {
		return nil, fmt.Errorf("%w: element %s is a %s, not a group", ErrInvalidParams, p.GroupID, g.Kind)
	}
	clone := g.Clone()
	return UngroupElements{GroupID: p.GroupID, SlideID: d.Slides[si].ID, Index: &ei, Group: &clone}, nil
}

func (p UngroupElements) apply(d *model.Deck) error {
	if p.Index == nil || p.Group == nil || p.Group.Group == nil {
		return fmt.Errorf("%w: ungroupElements", ErrNotPrepared)
	}
	s, err := slideByID(d, p.SlideID)
	if err != nil {
		return err
	}
	idx := *p.Index
	if idx >= len(s.Elements) || s.Elements[idx].ID != p.GroupID {
		return fmt.Errorf("%w: group %s not at index %d", ErrTargetNotFound, p.GroupID, idx)
	}
	s.RemoveElement(idx)
	for i, child := range p.Group.Group.Children {
		s.InsertElement(idx+i, child.Clone())
	}
	return nil
}

func (p UngroupElements) revert(d *model.Deck) error {
	if p.Index == nil || p.Group == nil || p.Group.Group == nil {
		return fmt.Errorf("%w: ungroupElements", ErrNotPrepared)
	}
	s, err := slideByID(d, p.SlideID)
	if err != nil {
		return err
	}
	idx := *p.Index
	children := p.Group.Group.Children
	for i := len(children) - 1; i >= 0; i-- {
		at := idx + i
		if at >= len(s.Elements) || s.Elements[at].ID != children[i].ID {
			return fmt.Errorf("%w: element %s not at index %d", ErrTargetNotFound, children[i].ID, at)
		}
		s.RemoveElement(at)
	}
	s.InsertElement(idx, p.Group.Clone())
	return nil
}
