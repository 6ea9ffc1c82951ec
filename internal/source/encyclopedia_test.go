package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/museumatlas/curator/internal/model"
	"github.com/museumatlas/curator/internal/resilience"
)

func TestEncyclopedia_LookupFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/museums/lookup", r.URL.Path)
		assert.Equal(t, "Louvre", r.URL.Query().Get("name"))
		assert.Equal(t, "Paris", r.URL.Query().Get("city"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"found": true,
			"summary": "The world's largest art museum.",
			"museum_type": "art",
			"visit_duration": "3-6 hours",
			"art_movement": "Renaissance",
			"featured_artists": ["Leonardo da Vinci", "Delacroix"],
			"confidence": 4
		}`))
	}))
	defer srv.Close()

	e := NewEncyclopedia(srv.URL, "test-key")
	fields, err := e.Lookup(context.Background(), &model.Museum{ID: "louvre", Name: "Louvre", City: "Paris"})
	require.NoError(t, err)

	desc := fields["description"]
	assert.Equal(t, "The world's largest art museum.", desc.Value)
	assert.Equal(t, "encyclopedia", desc.Source)
	assert.Equal(t, model.TrustEncyclopediaSummary, desc.Trust)
	assert.Equal(t, 4, desc.Confidence)

	assert.Equal(t, "art", fields["museum_type"].Value)
	assert.Equal(t, "3-6 hours", fields["visit_duration"].Value)
	assert.Equal(t, "Leonardo da Vinci, Delacroix", fields["featured_artists"].Value)
}

func TestEncyclopedia_NotFoundIsEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"found": false}`))
	}))
	defer srv.Close()

	e := NewEncyclopedia(srv.URL, "")
	fields, err := e.Lookup(context.Background(), &model.Museum{ID: "ghost", Name: "Ghost"})
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestEncyclopedia_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewEncyclopedia(srv.URL, "")
	_, err := e.Lookup(context.Background(), &model.Museum{ID: "m1", Name: "X"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestEncyclopedia_ClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewEncyclopedia(srv.URL, "")
	_, err := e.Lookup(context.Background(), &model.Museum{ID: "m1", Name: "X"})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestEncyclopedia_ConfidenceClamped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"found": true, "summary": "s", "confidence": 11}`))
	}))
	defer srv.Close()

	e := NewEncyclopedia(srv.URL, "")
	fields, err := e.Lookup(context.Background(), &model.Museum{ID: "m1", Name: "X"})
	require.NoError(t, err)
	assert.Equal(t, 5, fields["description"].Confidence)
}

func TestEncyclopedia_CostSinkFiresPerCall(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"found": true, "summary": "s", "confidence": 3}`))
	}))
	defer srv.Close()

	var spent []float64
	e := NewEncyclopedia(srv.URL, "",
		WithLookupCost(0.002),
		WithCostSink(func(usd float64) { spent = append(spent, usd) }),
	)

	_, err := e.Lookup(context.Background(), &model.Museum{ID: "m1", Name: "X"})
	require.NoError(t, err)
	require.Len(t, spent, 1)
	assert.InDelta(t, 0.002, spent[0], 1e-9)
}

func TestEncyclopedia_CostSinkSkippedOnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var spent []float64
	e := NewEncyclopedia(srv.URL, "",
		WithCostSink(func(usd float64) { spent = append(spent, usd) }),
	)

	_, err := e.Lookup(context.Background(), &model.Museum{ID: "m1", Name: "X"})
	require.Error(t, err)
	assert.Empty(t, spent, "a failed lookup must not bill")
}

func TestEncyclopedia_DefaultCost(t *testing.T) {
	t.Parallel()

	e := NewEncyclopedia("https://example.test", "")
	assert.InDelta(t, 0.001, e.CostUSD(), 1e-9)

	e = NewEncyclopedia("https://example.test", "", WithLookupCost(0.05))
	assert.InDelta(t, 0.05, e.CostUSD(), 1e-9)
}
