package mocks

import (
	"context"
	"net/http"
	"sync"

	"github.com/custodia-labs/xpost/internal/core/ports/driven"
)

// Ensure MockPostingClient implements PostingClient
var _ driven.PostingClient = (*MockPostingClient)(nil)

// MockPostingClient is a mock implementation of PostingClient for testing.
// Unset functions succeed with a canned response.
type MockPostingClient struct {
	CreatePostFn  func(ctx context.Context, accessToken string, post *driven.PostRequest) (*driven.APIResponse, error)
	UploadMediaFn func(ctx context.Context, accessToken, path string) (string, error)

	mu     sync.Mutex
	Posts  []*driven.PostRequest
	Tokens []string
}

func (m *MockPostingClient) CreatePost(ctx context.Context, accessToken string, post *driven.PostRequest) (*driven.APIResponse, error) {
	m.mu.Lock()
	m.Posts = append(m.Posts, post)
	m.Tokens = append(m.Tokens, accessToken)
	m.mu.Unlock()

	if m.CreatePostFn != nil {
		return m.CreatePostFn(ctx, accessToken, post)
	}
	return &driven.APIResponse{
		StatusCode: http.StatusCreated,
		Reason:     "Created",
		Body:       []byte(`{"data":{"id":"1","text":"ok https://t.co/abc123"}}`),
	}, nil
}

func (m *MockPostingClient) UploadMedia(ctx context.Context, accessToken, path string) (string, error) {
	if m.UploadMediaFn != nil {
		return m.UploadMediaFn(ctx, accessToken, path)
	}
	return "media-1", nil
}

// PostCount returns how many create-post calls were made.
func (m *MockPostingClient) PostCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Posts)
}
