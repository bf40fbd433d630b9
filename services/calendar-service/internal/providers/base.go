package providers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultRequestTimeout  = 10 * time.Second
	DefaultLookAhead       = 7 * 24 * time.Hour
	DefaultMaxAlternatives = 5
	defaultRatePerSecond   = 10
)

// Config is shared by the Google and Outlook providers. Zero values fall back to the
// production endpoints and the defaults above.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// BaseURL overrides the REST API root, Endpoint overrides the OAuth endpoints.
	BaseURL  string
	Endpoint oauth2.Endpoint

	RequestTimeout  time.Duration
	RatePerSecond   float64
	LookAhead       time.Duration
	MaxAlternatives int

	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// base carries everything a provider shares across the clients it opens.
type base struct {
	name            model.Provider
	baseURL         string
	oauth           *oauth2.Config
	http            *http.Client
	limiter         *rate.Limiter
	logger          *slog.Logger
	lookAhead       time.Duration
	maxAlternatives int
	now             func() time.Time
}

func newBase(name model.Provider, cfg Config, defaultBaseURL string, defaultEndpoint oauth2.Endpoint, defaultScopes []string) base {
	b := base{
		name:            name,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		http:            cfg.HTTPClient,
		logger:          cfg.Logger,
		lookAhead:       cfg.LookAhead,
		maxAlternatives: cfg.MaxAlternatives,
		now:             cfg.Now,
	}
	if b.baseURL == "" {
		b.baseURL = defaultBaseURL
	}
	if b.http == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = DefaultRequestTimeout
		}
		b.http = &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.lookAhead <= 0 {
		b.lookAhead = DefaultLookAhead
	}
	if b.maxAlternatives <= 0 {
		b.maxAlternatives = DefaultMaxAlternatives
	}
	if b.now == nil {
		b.now = time.Now
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = defaultRatePerSecond
	}
	b.limiter = rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)

	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = defaultEndpoint
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	b.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
		Endpoint:     endpoint,
	}
	return b
}

func (b *base) Name() model.Provider { return b.name }

// AuthCodeURL asks for offline access so the exchange yields a refresh token.
func (b *base) AuthCodeURL(state string) string {
	return b.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (b *base) Exchange(ctx context.Context, code string) (model.Credentials, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.http)
	tok, err := b.oauth.Exchange(ctx, code)
	if err != nil {
		return model.Credentials{}, &AuthError{Provider: b.name, Reason: "authorization code exchange failed", Err: err}
	}
	return model.Credentials{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

func (b *base) newSession(conn model.CalendarConnection, onRefresh TokenRefreshFunc, header http.Header) *session {
	s := &session{
		provider:  b.name,
		oauth:     b.oauth,
		http:      b.http,
		limiter:   b.limiter,
		logger:    b.logger.With("connection_id", conn.ID, "tenant_id", conn.TenantID),
		header:    header,
		onRefresh: onRefresh,
	}
	s.SetCredentials(conn.Credentials)
	return s
}
