package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/museumatlas/curator/internal/model"
	"github.com/museumatlas/curator/internal/resilience"
)

// encyclopediaResponse is the wire shape of one encyclopedia article lookup.
type encyclopediaResponse struct {
	Found           bool     `json:"found"`
	Summary         string   `json:"summary"`
	MuseumType      string   `json:"museum_type"`
	VisitDuration   string   `json:"visit_duration"`
	ArtMovement     string   `json:"art_movement"`
	FeaturedArtists []string `json:"featured_artists"`
	Confidence      int      `json:"confidence"`
}

// Encyclopedia fetches article summaries for museums from an encyclopedia
// lookup service. Envelopes carry encyclopedia_summary trust; the volatility
// and domain gates downstream decide what actually lands.
type Encyclopedia struct {
	baseURL string
	apiKey  string
	costUSD float64
	onCost  func(usd float64)
	http    *http.Client
	now     func() time.Time
}

// EncyclopediaOption configures the adapter.
type EncyclopediaOption func(*Encyclopedia)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) EncyclopediaOption {
	return func(e *Encyclopedia) { e.http = hc }
}

// WithLookupCost sets the flat per-query cost charged against the budget.
func WithLookupCost(usd float64) EncyclopediaOption {
	return func(e *Encyclopedia) { e.costUSD = usd }
}

// WithCostSink registers a callback invoked with the flat cost each time a
// lookup actually reaches the service. Cache layers above the adapter never
// trigger it, so recorded spend reflects paid calls only.
func WithCostSink(fn func(usd float64)) EncyclopediaOption {
	return func(e *Encyclopedia) { e.onCost = fn }
}

// NewEncyclopedia creates the encyclopedia lookup adapter.
func NewEncyclopedia(baseURL, apiKey string, opts ...EncyclopediaOption) *Encyclopedia {
	e := &Encyclopedia{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		costUSD: 0.001,
		http:    &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Encyclopedia) Name() string            { return "encyclopedia" }
func (e *Encyclopedia) Trust() model.TrustLevel { return model.TrustEncyclopediaSummary }
func (e *Encyclopedia) CostUSD() float64        { return e.costUSD }

func (e *Encyclopedia) Lookup(ctx context.Context, m *model.Museum) (map[string]model.EnrichedField, error) {
	q := url.Values{}
	q.Set("name", m.Name)
	if m.City != "" {
		q.Set("city", m.City)
	}
	if m.Country != "" {
		q.Set("country", m.Country)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.baseURL+"/v1/museums/lookup?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "encyclopedia: build request")
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "encyclopedia: lookup %s", m.ID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := eris.Errorf("encyclopedia: lookup %s: status %d: %s", m.ID, resp.StatusCode, string(body))
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.MarkTransient(err, resp.StatusCode)
		}
		return nil, err
	}

	var payload encyclopediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, eris.Wrapf(err, "encyclopedia: decode response for %s", m.ID)
	}
	if e.onCost != nil {
		e.onCost(e.costUSD)
	}
	if !payload.Found {
		return map[string]model.EnrichedField{}, nil
	}

	confidence := payload.Confidence
	if confidence < 1 {
		confidence = 1
	} else if confidence > 5 {
		confidence = 5
	}

	now := e.now().UTC()
	fields := make(map[string]model.EnrichedField)
	add := func(key string, value any) {
		f, err := model.NewEnrichedField(value, e.Name(), e.Trust(), confidence, now)
		if err != nil {
			return
		}
		fields[key] = f
	}

	if payload.Summary != "" {
		add("description", payload.Summary)
	}
	if payload.MuseumType != "" {
		add("museum_type", payload.MuseumType)
	}
	if payload.VisitDuration != "" {
		add("visit_duration", payload.VisitDuration)
	}
	if payload.ArtMovement != "" {
		add("art_movement", payload.ArtMovement)
	}
	if len(payload.FeaturedArtists) > 0 {
		add("featured_artists", strings.Join(payload.FeaturedArtists, ", "))
	}
	return fields, nil
}

// String satisfies fmt.Stringer for log lines.
func (e *Encyclopedia) String() string {
	return fmt.Sprintf("encyclopedia(%s)", e.baseURL)
}
