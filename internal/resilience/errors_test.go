package resilience

import (
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", eris.New("bad input"), false},
		{"marked transient", MarkTransient(eris.New("throttled"), 429), true},
		{"wrapped transient", fmt.Errorf("lookup: %w", MarkTransient(eris.New("throttled"), 429)), true},
		{"timeout message", eris.New("read tcp: i/o timeout"), true},
		{"dns message", eris.New("dial: no such host"), true},
		{"reset message", eris.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestRetryableStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, RetryableStatus(status), "status %d", status)
	}
	for _, status := range []int{200, 301, 400, 401, 403, 404, 422} {
		assert.False(t, RetryableStatus(status), "status %d", status)
	}
}

func TestTransientUnwrap(t *testing.T) {
	t.Parallel()

	inner := eris.New("upstream failed")
	te := MarkTransient(inner, 503)
	assert.Equal(t, "upstream failed", te.Error())
	assert.Equal(t, inner, te.Unwrap())
	assert.Equal(t, 503, te.Status)
}
