package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/museumatlas/curator/internal/model"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"https://www.louvre.fr/", "https://www.louvre.fr"},
		{"HTTP://Museum.Example.ORG/visit", "http://museum.example.org/visit"},
		{"rijksmuseum.nl", "https://rijksmuseum.nl"},
		{"https://tate.org.uk/#tickets", "https://tate.org.uk"},
	}
	for _, tc := range cases {
		got, err := NormalizeURL(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	for _, bad := range []string{"", "   ", "ftp://museum.example.org", "https://"} {
		_, err := NormalizeURL(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestNormalizeDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want model.VisitDuration
	}{
		{"1_3h", model.DurationHalfDay},
		{"under an hour", model.DurationQuick},
		{"30 minutes", model.DurationQuick},
		{"45 min", model.DurationQuick},
		{"2 hours", model.DurationHalfDay},
		{"1-2 hours", model.DurationHalfDay},
		{"2 to 3 hours", model.DurationHalfDay},
		{"4 hours", model.DurationFullDay},
		{"Half day", model.DurationHalfDay},
		{"all day", model.DurationFullDay},
		{"several days", model.DurationMultiDay},
		{"10 hours", model.DurationMultiDay},
	}
	for _, tc := range cases {
		got, err := NormalizeDuration(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "depends", "a while", "soonish"} {
		_, err := NormalizeDuration(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestNormalizeLocality(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sao paulo", NormalizeLocality("São Paulo"))
	assert.Equal(t, "sao paulo", NormalizeLocality("  sao   paulo "))
	assert.Equal(t, "zurich", NormalizeLocality("Zürich"))
	assert.Equal(t, NormalizeLocality("Málaga"), NormalizeLocality("malaga"))
	assert.Equal(t, "", NormalizeLocality("   "))
}
