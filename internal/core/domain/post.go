package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PostDraft is the deferred action carried through an authorization flow.
type PostDraft struct {
	Text string `json:"text"`

	// MediaPath is a staged file on local disk, empty when no media was attached.
	MediaPath string `json:"media_path,omitempty"`
}

// Validate checks that the draft has something to publish.
func (d *PostDraft) Validate() error {
	if strings.TrimSpace(d.Text) == "" && d.MediaPath == "" {
		return ErrInvalidInput
	}
	return nil
}

// Encode validates the draft and serializes it into an orchestrator payload.
func (d *PostDraft) Encode() (json.RawMessage, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode draft: %w", err)
	}
	return data, nil
}

// ActionResult is the outcome of a deferred action that ran to completion.
type ActionResult struct {
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
	PostID  string `json:"post_id,omitempty"`
}
