package services

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
	"github.com/tidwall/gjson"
)

const apiErrorPrefix = "X API Error: "

// postLinkPattern matches the first short or canonical post link in post text.
var postLinkPattern = regexp.MustCompile(`https://(?:t\.co|x\.com)/\w+`)

// ClassifyResponse turns a non-2xx X API response into a user-facing error.
// Precedence: a non-empty "errors" list, then HTTP 429, then the body's
// detail, title or the HTTP reason phrase.
func ClassifyResponse(resp *driven.APIResponse) *domain.DownstreamAPIError {
	var body gjson.Result
	if gjson.ValidBytes(resp.Body) {
		body = gjson.ParseBytes(resp.Body)
	}

	if body.IsObject() {
		if list := body.Get("errors"); list.IsArray() && len(list.Array()) > 0 {
			return &domain.DownstreamAPIError{
				StatusCode: resp.StatusCode,
				Kind:       domain.DownstreamErrorList,
				Message:    apiErrorPrefix + strings.Join(errorMessages(list), "; "),
			}
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &domain.DownstreamAPIError{
			StatusCode: resp.StatusCode,
			Kind:       domain.DownstreamRateLimited,
			Message:    domain.RateLimitMessage,
		}
	}

	kind := domain.DownstreamOpaque
	detail := reasonPhrase(resp)
	if body.IsObject() {
		for _, field := range []string{"detail", "title"} {
			if v := body.Get(field).String(); v != "" {
				kind = domain.DownstreamDetail
				detail = v
				break
			}
		}
	}

	return &domain.DownstreamAPIError{
		StatusCode: resp.StatusCode,
		Kind:       kind,
		Message:    fmt.Sprintf("Error (%d): %s", resp.StatusCode, detail),
	}
}

func errorMessages(list gjson.Result) []string {
	var msgs []string
	list.ForEach(func(_, e gjson.Result) bool {
		msg := e.Get("message").String()
		if msg == "" {
			msg = e.Get("detail").String()
		}
		if msg == "" {
			msg = e.Raw
		}
		msgs = append(msgs, msg)
		return true
	})
	return msgs
}

func reasonPhrase(resp *driven.APIResponse) string {
	if resp.Reason != "" {
		return resp.Reason
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return "Unknown Error"
}

// ExtractPostLink returns the first post link in the created post's text,
// or "" when none is present.
func ExtractPostLink(body []byte) string {
	text := gjson.GetBytes(body, "data.text").String()
	return postLinkPattern.FindString(text)
}
