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

	"github.com/AleutianAI/AleutianDeck/services/deck/model"
)

// SettingsPatch lists the deck settings to change. Nil fields are left alone.
type SettingsPatch struct {
	Theme       *string `json:"theme,omitempty" validate:"omitempty,min=1"`
	AspectRatio *string `json:"aspectRatio,omitempty" validate:"omitempty,min=1"`
	Width       *int    `json:"width,omitempty" validate:"omitempty,min=1"`
	Height      *int    `json:"height,omitempty" validate:"omitempty,min=1"`
	Loop        *bool   `json:"loop,omitempty"`
	AutoAdvance *bool   `json:"autoAdvance,omitempty"`
}

func (p SettingsPatch) empty() bool {
	return p.Theme == nil && p.AspectRatio == nil && p.Width == nil &&
		p.Height == nil && p.Loop == nil && p.AutoAdvance == nil
}

func (p SettingsPatch) applyTo(s *model.Settings) {
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.AspectRatio != nil {
		s.AspectRatio = *p.AspectRatio
	}
	if p.Width != nil {
		s.Width = *p.Width
	}
	if p.Height != nil {
		s.Height = *p.Height
	}
	if p.Loop != nil {
		s.Loop = *p.Loop
	}
	if p.AutoAdvance != nil {
		s.AutoAdvance = *p.AutoAdvance
	}
}

// UpdateSettings patches deck-wide settings.
type UpdateSettings struct {
	Patch    SettingsPatch   `json:"patch"`
	Previous *model.Settings `json:"previous,omitempty"`
}

func (UpdateSettings) CommandType() Type { return TypeUpdateSettings }

func (p UpdateSettings) prepare(d *model.Deck) (Params, error) {
	if p.Patch.empty() {
		return nil, fmt.Errorf("%w: empty settings patch", ErrInvalidParams)
	}
	prev := d.Settings
	return UpdateSettings{Patch: p.Patch, Previous: &prev}, nil
}

func (p UpdateSettings) apply(d *model.Deck) error {
	p.Patch.applyTo(&d.Settings)
	return nil
}

func (p UpdateSettings) revert(d *model.Deck) error {
	if p.Previous == nil {
		return fmt.Errorf("%w: updateSettings", ErrNotPrepared)
	}
	d.Settings = *p.Previous
	return nil
}
