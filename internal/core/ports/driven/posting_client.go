package driven

import (
	"context"
	"net/http"
)

// PostRequest is the body of a create-post call.
type PostRequest struct {
	Text     string
	MediaIDs []string
}

// APIResponse is a raw X API response, kept unparsed for classification.
type APIResponse struct {
	StatusCode int
	Reason     string
	Body       []byte
}

// OK reports whether the response has a 2xx status.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// PostingClient talks to the X API on behalf of the authorized user.
type PostingClient interface {
	// CreatePost publishes a post. Transport failures return an error;
	// any HTTP response, successful or not, is returned as-is.
	CreatePost(ctx context.Context, accessToken string, post *PostRequest) (*APIResponse, error)

	// UploadMedia uploads the file at path and returns its media id.
	UploadMedia(ctx context.Context, accessToken, path string) (string, error)
}
