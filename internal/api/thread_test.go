package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "absent uses default", query: "", want: 20},
		{name: "valid value", query: "limit=50", want: 50},
		{name: "non-numeric uses default", query: "limit=abc", want: 20},
		{name: "below min clamps", query: "limit=0", want: 1},
		{name: "above max clamps", query: "limit=5000", want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/api/threads?"+tt.query, nil)
			assert.Equal(t, tt.want, parseIntParam(r, "limit", 20, 1, 100))
		})
	}
}
