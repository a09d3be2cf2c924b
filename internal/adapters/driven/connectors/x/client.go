package x

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/custodia-labs/xpost/internal/core/ports/driven"
	"github.com/tidwall/gjson"
)

// Ensure Client implements the interface.
var _ driven.PostingClient = (*Client)(nil)

// maxErrorBody caps how much of a failed response is kept.
const maxErrorBody = 64 << 10

// Client provides X API operations with a user access token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	uploadURL  string
}

// NewClient creates a new X API client.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.APIBaseURL, "/"),
		uploadURL:  cfg.UploadURL,
	}
}

type createPostBody struct {
	Text  string           `json:"text"`
	Media *createPostMedia `json:"media,omitempty"`
}

type createPostMedia struct {
	MediaIDs []string `json:"media_ids"`
}

// CreatePost publishes a post and returns the raw response for classification.
func (c *Client) CreatePost(ctx context.Context, accessToken string, post *driven.PostRequest) (*driven.APIResponse, error) {
	body := createPostBody{Text: post.Text}
	if len(post.MediaIDs) > 0 {
		body.Media = &createPostMedia{MediaIDs: post.MediaIDs}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// UploadMedia uploads a local file with a multipart "media" field.
func (c *Client) UploadMedia(ctx context.Context, accessToken, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("media_category", mediaCategory(path)); err != nil {
		return "", fmt.Errorf("write media category: %w", err)
	}
	part, err := w.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create media part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy media: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("media upload failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}

	// v2 returns data.id; the v1.1 endpoint returns media_id_string.
	for _, field := range []string{"data.id", "media_id_string", "media_id"} {
		if id := gjson.GetBytes(resp.Body, field); id.String() != "" {
			return id.String(), nil
		}
	}
	return "", fmt.Errorf("media upload response has no media id")
}

func (c *Client) do(req *http.Request) (*driven.APIResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &driven.APIResponse{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp.Status, resp.StatusCode),
		Body:       body,
	}, nil
}

// reasonPhrase strips the numeric code from an HTTP status line.
func reasonPhrase(status string, code int) string {
	reason := strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(code)))
	if reason == "" {
		reason = http.StatusText(code)
	}
	return reason
}

func mediaCategory(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gif":
		return "tweet_gif"
	case ".mp4", ".mov":
		return "tweet_video"
	default:
		return "tweet_image"
	}
}
