package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
	"github.com/tidwall/gjson"
)

// Ensure Publisher implements ActionRunner and StagedPruner
var (
	_ driven.ActionRunner = (*Publisher)(nil)
	_ StagedPruner        = (*Publisher)(nil)
)

// PublisherConfig holds configuration for the publisher.
type PublisherConfig struct {
	Client driven.PostingClient
	Logger *slog.Logger

	// UploadDir is where the HTTP front end stages media. Optional: without
	// it PruneStaged does nothing.
	UploadDir string
}

// Publisher publishes a PostDraft to X. It is the deferred action run once
// the orchestrator has a usable token.
type Publisher struct {
	client    driven.PostingClient
	logger    *slog.Logger
	uploadDir string
}

// NewPublisher creates a new publisher.
func NewPublisher(cfg PublisherConfig) *Publisher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:    cfg.Client,
		logger:    logger,
		uploadDir: cfg.UploadDir,
	}
}

func decodeDraft(payload json.RawMessage) (*domain.PostDraft, error) {
	var draft domain.PostDraft
	if err := json.Unmarshal(payload, &draft); err != nil {
		return nil, fmt.Errorf("%w: malformed post payload", domain.ErrInvalidInput)
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return &draft, nil
}

// Run uploads the staged media, if any, and creates the post.
// A failed media upload degrades to a text-only post.
func (p *Publisher) Run(ctx context.Context, token *domain.Token, payload json.RawMessage) (*domain.ActionResult, error) {
	draft, err := decodeDraft(payload)
	if err != nil {
		return nil, err
	}

	req := &driven.PostRequest{Text: draft.Text}
	if draft.MediaPath != "" {
		mediaID, err := p.client.UploadMedia(ctx, token.AccessToken, draft.MediaPath)
		if err != nil {
			p.logger.Warn("media upload failed, posting without media", "path", draft.MediaPath, "error", err)
		} else {
			req.MediaIDs = []string{mediaID}
		}
	}

	resp, err := p.client.CreatePost(ctx, token.AccessToken, req)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s", domain.ErrTokenInvalid, ClassifyResponse(resp).Message)
	}
	if !resp.OK() {
		apiErr := ClassifyResponse(resp)
		p.logger.Warn("post rejected", "status", resp.StatusCode, "kind", apiErr.Kind, "message", apiErr.Message)
		return nil, apiErr
	}

	result := &domain.ActionResult{
		Message: domain.PostPublishedMessage,
		Link:    ExtractPostLink(resp.Body),
		PostID:  gjson.GetBytes(resp.Body, "data.id").String(),
	}
	p.logger.Info("post published", "post_id", result.PostID, "with_media", len(req.MediaIDs) > 0)
	return result, nil
}

// Release removes the staged media file of a draft.
func (p *Publisher) Release(ctx context.Context, payload json.RawMessage) {
	var draft domain.PostDraft
	if err := json.Unmarshal(payload, &draft); err != nil || draft.MediaPath == "" {
		return
	}
	if err := os.Remove(draft.MediaPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("failed to remove staged media", "path", draft.MediaPath, "error", err)
	}
}

// PruneStaged removes staged media files last modified more than olderThan
// ago and returns how many were removed. Files younger than the flow TTL may
// still belong to a pending flow; olderThan 0 removes everything.
func (p *Publisher) PruneStaged(ctx context.Context, olderThan time.Duration) (int, error) {
	if p.uploadDir == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(p.uploadDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read upload dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(p.uploadDir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("failed to remove staged media", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		p.logger.Info("pruned staged media", "count", removed, "dir", p.uploadDir)
	}
	return removed, nil
}
