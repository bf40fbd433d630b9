package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// AuthState is the credential state of one Client.
type AuthState int

const (
	StateUnauthenticated AuthState = iota
	StateAuthenticated
	StateTokenExpired
	StateAuthFailed
)

func (s AuthState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateTokenExpired:
		return "token_expired"
	case StateAuthFailed:
		return "auth_failed"
	default:
		return fmt.Sprintf("AuthState(%d)", int(s))
	}
}

const maxResponseBytes = 8 << 20

// session performs authenticated calls for one client. On a 401 it exchanges the refresh
// token once, retries the call once with the new token, and gives up with AuthError after that.
type session struct {
	provider  model.Provider
	oauth     *oauth2.Config
	http      *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
	header    http.Header
	onRefresh TokenRefreshFunc

	mu         sync.Mutex
	creds      model.Credentials
	state      AuthState
	generation int
}

func (s *session) SetCredentials(creds model.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.generation++
	if creds.AccessToken == "" {
		s.state = StateUnauthenticated
		return
	}
	s.state = StateAuthenticated
}

func (s *session) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) currentToken() (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateUnauthenticated:
		return "", 0, &AuthError{Provider: s.provider, Reason: "no access token set"}
	case StateAuthFailed:
		return "", 0, &AuthError{Provider: s.provider, Reason: "credentials previously rejected"}
	}
	return s.creds.AccessToken, s.generation, nil
}

// refresh swaps in a new access token. seenGeneration is the token generation the caller
// used; if another call already refreshed past it, the newer token is returned as is.
func (s *session) refresh(ctx context.Context, seenGeneration int) (string, error) {
	s.mu.Lock()
	if s.generation != seenGeneration && s.state == StateAuthenticated {
		token := s.creds.AccessToken
		s.mu.Unlock()
		return token, nil
	}
	if s.state == StateAuthFailed {
		s.mu.Unlock()
		return "", &AuthError{Provider: s.provider, Reason: "credentials previously rejected"}
	}
	s.state = StateTokenExpired
	if s.creds.RefreshToken == "" {
		s.state = StateAuthFailed
		s.mu.Unlock()
		return "", &AuthError{Provider: s.provider, Reason: "access token expired and no refresh token is available"}
	}

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, s.http)
	tok, err := s.oauth.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: s.creds.RefreshToken}).Token()
	if err != nil {
		s.state = StateAuthFailed
		s.mu.Unlock()
		return "", &AuthError{Provider: s.provider, Reason: "token refresh failed", Err: err}
	}
	s.creds.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.creds.RefreshToken = tok.RefreshToken
	}
	s.generation++
	s.state = StateAuthenticated
	rotated := s.creds
	s.mu.Unlock()

	s.logger.Info("provider access token refreshed", "provider", s.provider)
	if s.onRefresh != nil {
		if err := s.onRefresh(ctx, rotated); err != nil {
			s.logger.Warn("persisting refreshed token failed", "provider", s.provider, "err", err)
		}
	}
	return rotated.AccessToken, nil
}

func (s *session) markFailed() {
	s.mu.Lock()
	s.state = StateAuthFailed
	s.mu.Unlock()
}

// do sends an authenticated JSON request and decodes a 2xx body into out (if non-nil).
func (s *session) do(ctx context.Context, op, method, url string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", s.provider, op, err)
		}
	}

	token, generation, err := s.currentToken()
	if err != nil {
		return err
	}
	status, respBody, err := s.send(ctx, method, url, body, token)
	if err != nil {
		return fmt.Errorf("%s %s: %w", s.provider, op, err)
	}

	if status == http.StatusUnauthorized {
		token, err = s.refresh(ctx, generation)
		if err != nil {
			return err
		}
		status, respBody, err = s.send(ctx, method, url, body, token)
		if err != nil {
			return fmt.Errorf("%s %s: %w", s.provider, op, err)
		}
		if status == http.StatusUnauthorized {
			s.markFailed()
			return &AuthError{Provider: s.provider, Reason: "access token rejected after refresh"}
		}
	}

	if status < 200 || status >= 300 {
		return &ProviderAPIError{Provider: s.provider, Op: op, Status: status, Body: string(respBody)}
	}
	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", s.provider, op, err)
		}
	}
	return nil
}

func (s *session) send(ctx context.Context, method, url string, body []byte, token string) (int, []byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range s.header {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}
