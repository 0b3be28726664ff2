package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"plain http", "http://localhost:8000", false},
		{"https", "https://example.com/path", false},
		{"file scheme", "file:///etc/passwd", true},
		{"command injection", "http://localhost;rm -rf /", true},
		{"spaces", "http://local host", true},
		{"no host", "http://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateProxyTarget(t *testing.T) {
	assert.NoError(t, ValidateProxyTarget("http://upstream.test"))
	assert.NoError(t, ValidateProxyTarget("https://api.example.com/base"))
	assert.Error(t, ValidateProxyTarget("ftp://upstream.test"))
	assert.Error(t, ValidateProxyTarget("http:///nohost"))
	assert.Error(t, ValidateProxyTarget("http://upstream.test/?a=b"))
	assert.Error(t, ValidateProxyTarget("://bad"))
}

func TestValidateProxyPrefix(t *testing.T) {
	assert.NoError(t, ValidateProxyPrefix("/api"))
	assert.Error(t, ValidateProxyPrefix("api"))
	assert.Error(t, ValidateProxyPrefix("/api?x=1"))
}

func TestValidateEditorFile(t *testing.T) {
	assert.NoError(t, ValidateEditorFile("/src/pages/index.js"))
	assert.Error(t, ValidateEditorFile(""))
	assert.Error(t, ValidateEditorFile("--wait"))
	assert.Error(t, ValidateEditorFile("a\nb"))
}
