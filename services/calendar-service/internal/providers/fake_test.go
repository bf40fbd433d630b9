package providers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGoogle is a minimal Calendar v3 plus token endpoint.
type fakeGoogle struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	validToken  string
	tokenStatus int
	tokenCalls  int
	apiCalls    int
	failCal     string
	events      map[string][]googleEvent
	lastQuery   map[string]string
	lastBody    googleEvent
	lastMethod  string
	lastForm    map[string]string
	nextID      int
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	f := &fakeGoogle{t: t, validToken: "access-1", events: map[string][]googleEvent{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", f.token)
	mux.HandleFunc("GET /calendars/{cal}/events", f.authed(f.list))
	mux.HandleFunc("POST /calendars/{cal}/events", f.authed(f.create))
	mux.HandleFunc("GET /calendars/{cal}/events/{id}", f.authed(f.get))
	mux.HandleFunc("PUT /calendars/{cal}/events/{id}", f.authed(f.update))
	mux.HandleFunc("DELETE /calendars/{cal}/events/{id}", f.authed(f.remove))
	mux.HandleFunc("GET /users/me/calendarList", f.authed(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":"primary"}]}`))
	}))
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGoogle) provider(now time.Time) *Google {
	return NewGoogle(Config{
		ClientID:      "client",
		ClientSecret:  "secret",
		BaseURL:       f.srv.URL,
		Endpoint:      oauth2.Endpoint{TokenURL: f.srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
		RatePerSecond: 1000,
		HTTPClient:    f.srv.Client(),
		Logger:        quietLogger(),
		Now:           func() time.Time { return now },
	})
}

func (f *fakeGoogle) add(cal string, ev googleEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if ev.ID == "" {
		ev.ID = "ev-" + strconv.Itoa(f.nextID)
	}
	f.events[cal] = append(f.events[cal], ev)
}

func (f *fakeGoogle) token(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCalls++
	if f.tokenStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.lastForm = map[string]string{}
	for k := range r.PostForm {
		f.lastForm[k] = r.PostForm.Get(k)
	}
	switch r.PostForm.Get("grant_type") {
	case "refresh_token":
	case "authorization_code":
		if r.PostForm.Get("code") != "code-ok" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.validToken = "access-" + strconv.Itoa(f.tokenCalls+1)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"access_token":"` + f.validToken + `","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-rotated"}`))
}

func (f *fakeGoogle) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.apiCalls++
		ok := r.Header.Get("Authorization") == "Bearer "+f.validToken
		failing := f.failCal != "" && r.PathValue("cal") == f.failCal
		f.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":{"code":401}}`, http.StatusUnauthorized)
			return
		}
		if failing {
			http.Error(w, `{"error":{"code":500}}`, http.StatusInternalServerError)
			return
		}
		next(w, r)
	}
}

func (f *fakeGoogle) list(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := r.URL.Query()
	f.lastQuery = map[string]string{}
	for k := range q {
		f.lastQuery[k] = q.Get(k)
	}
	tmin, _ := time.Parse(time.RFC3339, q.Get("timeMin"))
	tmax, _ := time.Parse(time.RFC3339, q.Get("timeMax"))

	var match []googleEvent
	for _, ev := range f.events[r.PathValue("cal")] {
		s, e := ev.Start.parse(), ev.End.parse()
		if !tmax.IsZero() && !s.Before(tmax) {
			continue
		}
		if !tmin.IsZero() && !e.After(tmin) {
			continue
		}
		match = append(match, ev)
	}
	sort.Slice(match, func(i, j int) bool { return match[i].Start.parse().Before(match[j].Start.parse()) })

	offset, _ := strconv.Atoi(q.Get("pageToken"))
	size, _ := strconv.Atoi(q.Get("maxResults"))
	if size <= 0 || size > 2 {
		size = 2
	}
	page := googleEventList{}
	end := min(offset+size, len(match))
	if offset < end {
		page.Items = match[offset:end]
	}
	if end < len(match) {
		page.NextPageToken = strconv.Itoa(end)
	}
	_ = json.NewEncoder(w).Encode(page)
}

func (f *fakeGoogle) create(w http.ResponseWriter, r *http.Request) {
	var ev googleEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.lastBody = ev
	f.lastQuery = map[string]string{}
	for k := range r.URL.Query() {
		f.lastQuery[k] = r.URL.Query().Get(k)
	}
	f.mu.Unlock()
	if ev.ConferenceData != nil && ev.ConferenceData.CreateRequest != nil {
		ev.HangoutLink = "https://meet.google.com/abc-defg-hij"
	}
	f.add(r.PathValue("cal"), ev)
	f.mu.Lock()
	ev = f.events[r.PathValue("cal")][len(f.events[r.PathValue("cal")])-1]
	f.mu.Unlock()
	ev.HTMLLink = "https://calendar.google.com/event?eid=" + ev.ID
	_ = json.NewEncoder(w).Encode(ev)
}

func (f *fakeGoogle) get(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events[r.PathValue("cal")] {
		if ev.ID == r.PathValue("id") {
			_ = json.NewEncoder(w).Encode(ev)
			return
		}
	}
	http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
}

func (f *fakeGoogle) update(w http.ResponseWriter, r *http.Request) {
	var ev googleEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastBody = ev
	f.lastMethod = r.Method
	f.lastQuery = map[string]string{}
	for k := range r.URL.Query() {
		f.lastQuery[k] = r.URL.Query().Get(k)
	}
	evs := f.events[r.PathValue("cal")]
	for i := range evs {
		if evs[i].ID == r.PathValue("id") {
			ev.ID = evs[i].ID
			evs[i] = ev
			_ = json.NewEncoder(w).Encode(ev)
			return
		}
	}
	http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
}

func (f *fakeGoogle) remove(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	evs := f.events[r.PathValue("cal")]
	for i, ev := range evs {
		if ev.ID == r.PathValue("id") {
			f.events[r.PathValue("cal")] = append(evs[:i], evs[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	http.Error(w, `{"error":{"code":410}}`, http.StatusGone)
}

func timedGoogleEvent(start, end time.Time) googleEvent {
	return googleEvent{
		Summary: "busy",
		Status:  "confirmed",
		Start:   googleDateTime{DateTime: start.Format(time.RFC3339)},
		End:     googleDateTime{DateTime: end.Format(time.RFC3339)},
	}
}

func (f *fakeGoogle) setValidToken(tok string) {
	f.mu.Lock()
	f.validToken = tok
	f.mu.Unlock()
}

func (f *fakeGoogle) setTokenStatus(status int) {
	f.mu.Lock()
	f.tokenStatus = status
	f.mu.Unlock()
}

func (f *fakeGoogle) setFailingCalendar(cal string) {
	f.mu.Lock()
	f.failCal = cal
	f.mu.Unlock()
}

func (f *fakeGoogle) calls() (tokens, api int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls, f.apiCalls
}

func (f *fakeGoogle) lastCreate() (googleEvent, map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody, f.lastQuery
}

func (f *fakeGoogle) tokenForm() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastForm
}

func (f *fakeGoogle) lastWrite() (string, googleEvent, map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMethod, f.lastBody, f.lastQuery
}
