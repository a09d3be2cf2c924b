package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/custodia-labs/xpost/internal/adapters/driven/connectors/x"
	"github.com/custodia-labs/xpost/internal/adapters/driven/memory"
	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
	"github.com/custodia-labs/xpost/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/xpost/internal/core/ports/driving"
	"github.com/custodia-labs/xpost/internal/core/services"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// recordingFlows remembers every flow it was asked to begin.
type recordingFlows struct {
	*memory.FlowStore
	mu    sync.Mutex
	begun []*domain.PendingFlow
}

func (r *recordingFlows) Begin(ctx context.Context, flow *domain.PendingFlow) error {
	r.mu.Lock()
	r.begun = append(r.begun, flow.Clone())
	r.mu.Unlock()
	return r.FlowStore.Begin(ctx, flow)
}

// tokenEndpoint is a fake provider token endpoint.
type tokenEndpoint struct {
	mu    sync.Mutex
	forms []url.Values
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	e.mu.Lock()
	e.forms = append(e.forms, r.PostForm)
	e.mu.Unlock()

	body := map[string]any{"token_type": "bearer", "expires_in": 7200, "scope": "tweet.read tweet.write offline.access"}
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		body["access_token"] = "issued-access"
		body["refresh_token"] = "issued-refresh"
	case "refresh_token":
		body["access_token"] = "refreshed-access"
	default:
		w.WriteHeader(http.StatusBadRequest)
		body = map[string]any{"error": "unsupported_grant_type"}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (e *tokenEndpoint) calls() []url.Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]url.Values(nil), e.forms...)
}

type world struct {
	server  *httptest.Server
	tokens  *tokenEndpoint
	flows   *recordingFlows
	store   *mocks.MockTokenStore
	poster  *mocks.MockPostingClient
	service driving.AuthorizationService

	outcome *driving.AuthorizationOutcome
	err     error
	authURL *url.URL
}

func (w *world) setUp() {
	w.tokens = &tokenEndpoint{}
	w.server = httptest.NewServer(w.tokens)
	w.flows = &recordingFlows{FlowStore: memory.NewFlowStore(domain.DefaultFlowTTL)}
	w.store = mocks.NewMockTokenStore(nil)
	w.poster = &mocks.MockPostingClient{}

	session := x.NewSession(x.Config{
		ClientID:    "client-123",
		RedirectURL: "http://localhost:5000/oauth/callback",
		TokenURL:    w.server.URL,
		Timeout:     2 * time.Second,
	})
	w.service = services.NewOrchestrator(services.OrchestratorConfig{
		Session: session,
		Flows:   w.flows,
		Tokens:  w.store,
		Runner:  services.NewPublisher(services.PublisherConfig{Client: w.poster}),
	})
	w.outcome, w.err, w.authURL = nil, nil, nil
}

func (w *world) tearDown() {
	if w.server != nil {
		w.server.Close()
	}
}

func (w *world) noTokenIsStored() error {
	return w.store.Clear(context.Background())
}

func (w *world) storedTokenNotExpiringSoon() error {
	return w.store.Save(context.Background(), &domain.Token{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
	})
}

func (w *world) storedTokenExpiringIn(seconds int, refresh string) error {
	return w.store.Save(context.Background(), &domain.Token{
		AccessToken:  "stored-access",
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Duration(seconds) * time.Second),
	})
}

func (w *world) postingAPIResponds(status int, body string) error {
	w.poster.CreatePostFn = func(ctx context.Context, accessToken string, post *driven.PostRequest) (*driven.APIResponse, error) {
		return &driven.APIResponse{StatusCode: status, Reason: http.StatusText(status), Body: []byte(body)}, nil
	}
	return nil
}

func (w *world) submitPost(text string) error {
	payload, err := (&domain.PostDraft{Text: text}).Encode()
	if err != nil {
		return err
	}
	w.outcome, w.err = w.service.EnsureAuthorized(context.Background(), payload)
	if w.outcome != nil && w.outcome.NeedsAuthorization() {
		w.authURL, err = url.Parse(w.outcome.AuthorizationURL)
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *world) issuedState() (string, error) {
	if w.authURL == nil {
		return "", errors.New("no authorization was started")
	}
	return w.authURL.Query().Get("state"), nil
}

func (w *world) callbackWithIssuedState(code string) error {
	state, err := w.issuedState()
	if err != nil {
		return err
	}
	return w.callback(code, state)
}

func (w *world) callback(code, state string) error {
	w.outcome, w.err = w.service.CompleteAuthorization(context.Background(), driving.CallbackRequest{Code: code, State: state})
	return nil
}

func (w *world) deniedWithIssuedState(providerErr string) error {
	state, err := w.issuedState()
	if err != nil {
		return err
	}
	w.outcome, w.err = w.service.CompleteAuthorization(context.Background(), driving.CallbackRequest{State: state, Error: providerErr})
	return nil
}

func (w *world) sentToProvider(method string) error {
	if w.err != nil {
		return fmt.Errorf("unexpected error: %w", w.err)
	}
	if w.authURL == nil {
		return errors.New("expected an authorization URL")
	}
	q := w.authURL.Query()
	if got := q.Get("code_challenge_method"); got != method {
		return fmt.Errorf("code_challenge_method = %q, want %q", got, method)
	}
	if q.Get("code_challenge") == "" {
		return errors.New("missing code_challenge")
	}
	if q.Get("state") == "" {
		return errors.New("missing state")
	}
	return nil
}

func (w *world) onePendingFlowWithText(text string) error {
	state, err := w.issuedState()
	if err != nil {
		return err
	}
	if n := w.flows.Len(); n != 1 {
		return fmt.Errorf("pending flows = %d, want 1", n)
	}
	w.flows.mu.Lock()
	defer w.flows.mu.Unlock()
	last := w.flows.begun[len(w.flows.begun)-1]
	if last.State != state {
		return fmt.Errorf("pending flow state = %q, want %q", last.State, state)
	}
	var draft domain.PostDraft
	if err := json.Unmarshal(last.Payload, &draft); err != nil {
		return err
	}
	if draft.Text != text {
		return fmt.Errorf("pending payload text = %q, want %q", draft.Text, text)
	}
	return nil
}

func (w *world) noPendingFlows() error {
	if n := w.flows.Len(); n != 0 {
		return fmt.Errorf("pending flows = %d, want 0", n)
	}
	return nil
}

func (w *world) noPostSent() error {
	if n := w.poster.PostCount(); n != 0 {
		return fmt.Errorf("posts sent = %d, want 0", n)
	}
	return nil
}

func (w *world) verifierMatchesChallenge() error {
	calls := w.tokens.calls()
	if len(calls) == 0 {
		return errors.New("token endpoint was not called")
	}
	verifier := calls[0].Get("code_verifier")
	challenge := w.authURL.Query().Get("code_challenge")
	if domain.DeriveChallenge(verifier) != challenge {
		return fmt.Errorf("verifier %q does not match challenge %q", verifier, challenge)
	}
	return nil
}

func (w *world) refreshGrantFor(refresh string) error {
	for _, form := range w.tokens.calls() {
		if form.Get("grant_type") == "refresh_token" && form.Get("refresh_token") == refresh {
			return nil
		}
	}
	return fmt.Errorf("no refresh grant for %q", refresh)
}

func (w *world) storedAccessToken(want string) error {
	tok := w.store.Current()
	if tok == nil {
		return errors.New("no token stored")
	}
	if tok.AccessToken != want {
		return fmt.Errorf("stored access token = %q, want %q", tok.AccessToken, want)
	}
	return nil
}

func (w *world) noTokenStoredAnymore() error {
	if tok := w.store.Current(); tok != nil {
		return fmt.Errorf("expected no stored token, found %q", tok.AccessToken)
	}
	return nil
}

func (w *world) resultMessage(want string) error {
	if w.err != nil {
		return fmt.Errorf("unexpected error: %w", w.err)
	}
	if w.outcome == nil || w.outcome.Result == nil {
		return errors.New("no action result")
	}
	if w.outcome.Result.Message != want {
		return fmt.Errorf("message = %q, want %q", w.outcome.Result.Message, want)
	}
	return nil
}

func (w *world) resultLinkMatches(pattern string) error {
	if w.outcome == nil || w.outcome.Result == nil {
		return errors.New("no action result")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	if !re.MatchString(w.outcome.Result.Link) {
		return fmt.Errorf("link %q does not match %s", w.outcome.Result.Link, pattern)
	}
	return nil
}

func (w *world) postTextSent(want string) error {
	if w.poster.PostCount() == 0 {
		return errors.New("no post was sent")
	}
	if got := w.poster.Posts[len(w.poster.Posts)-1].Text; got != want {
		return fmt.Errorf("post text = %q, want %q", got, want)
	}
	return nil
}

func (w *world) failsWith(want string) error {
	if w.err == nil {
		return errors.New("expected an error")
	}
	var oauthErr *driving.OAuthError
	var downstream *domain.DownstreamAPIError
	switch {
	case errors.Is(w.err, domain.ErrInvalidOrExpiredState):
		if want != domain.InvalidStateMessage {
			return fmt.Errorf("got invalid state, want %q", want)
		}
	case errors.As(w.err, &oauthErr):
		if oauthErr.Code != want {
			return fmt.Errorf("oauth error = %q, want %q", oauthErr.Code, want)
		}
	case errors.As(w.err, &downstream):
		if downstream.Message != want {
			return fmt.Errorf("message = %q, want %q", downstream.Message, want)
		}
	default:
		return fmt.Errorf("unexpected error: %w", w.err)
	}
	return nil
}

func (w *world) tokenEndpointNotCalled() error {
	return w.tokenEndpointCalled(0)
}

func (w *world) tokenEndpointCalled(n int) error {
	if got := len(w.tokens.calls()); got != n {
		return fmt.Errorf("token endpoint calls = %d, want %d", got, n)
	}
	return nil
}

func initializeScenario(sc *godog.ScenarioContext) {
	w := &world{}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		w.setUp()
		return ctx, nil
	})
	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		w.tearDown()
		return ctx, nil
	})

	sc.Step(`^no token is stored$`, w.noTokenIsStored)
	sc.Step(`^a stored token that does not expire soon$`, w.storedTokenNotExpiringSoon)
	sc.Step(`^a stored token that expires in (\d+) seconds with refresh token "([^"]*)"$`, w.storedTokenExpiringIn)
	sc.Step(`^the posting API responds with status (\d+) and body '(.*)'$`, w.postingAPIResponds)

	sc.Step(`^I submit a post with text "([^"]*)"$`, w.submitPost)
	sc.Step(`^the provider redirects back with code "([^"]*)" and the issued state$`, w.callbackWithIssuedState)
	sc.Step(`^the provider redirects back with code "([^"]*)" and state "([^"]*)"$`, w.callback)
	sc.Step(`^the provider redirects back with error "([^"]*)" and the issued state$`, w.deniedWithIssuedState)

	sc.Step(`^I am sent to the provider with code_challenge_method "([^"]*)" and a state$`, w.sentToProvider)
	sc.Step(`^exactly one pending flow exists for that state with payload text "([^"]*)"$`, w.onePendingFlowWithText)
	sc.Step(`^no pending flows remain$`, w.noPendingFlows)
	sc.Step(`^no post was sent$`, w.noPostSent)
	sc.Step(`^the token endpoint received a verifier matching the challenge$`, w.verifierMatchesChallenge)
	sc.Step(`^the token endpoint received a refresh grant for "([^"]*)"$`, w.refreshGrantFor)
	sc.Step(`^the token endpoint was not called$`, w.tokenEndpointNotCalled)
	sc.Step(`^the token endpoint was called (\d+) times?$`, w.tokenEndpointCalled)
	sc.Step(`^the stored access token is "([^"]*)"$`, w.storedAccessToken)
	sc.Step(`^no token is stored anymore$`, w.noTokenStoredAnymore)
	sc.Step(`^the result message is "([^"]*)"$`, w.resultMessage)
	sc.Step(`^the result link matches "([^"]*)"$`, w.resultLinkMatches)
	sc.Step(`^the post text sent was "([^"]*)"$`, w.postTextSent)
	sc.Step(`^the callback fails with "([^"]*)"$`, w.failsWith)
	sc.Step(`^the post fails with "([^"]*)"$`, w.failsWith)
}
