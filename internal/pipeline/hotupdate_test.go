package pipeline

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHotUpdateGuard(t *testing.T) {
	tests := []struct {
		path    string
		claimed bool
	}{
		{"/abc123.hot-update.json", true},
		{"/static/main.4f2a.hot-update.json", true},
		{"/abc123.hot-update.js", false},
		{"/hot-update.json.bak", false},
		{"/about", false},
	}

	guard := NewHotUpdateGuard()
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			outcome := guard.TryHandle(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if tt.claimed {
				assert.Equal(t, Claimed, outcome)
				assert.Equal(t, http.StatusNotFound, rec.Code)
			} else {
				assert.Equal(t, PassThrough, outcome)
				assert.Zero(t, rec.Body.Len())
			}
		})
	}
}
