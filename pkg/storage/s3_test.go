package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogoExtension(t *testing.T) {
	tests := []struct {
		ct   string
		ext  string
		isOK bool
	}{
		{"image/png", ".png", true},
		{"image/jpeg; charset=binary", ".jpg", true},
		{"IMAGE/WEBP", ".webp", true},
		{"image/gif", "", false},
		{"text/html", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ct, func(t *testing.T) {
			ext, ok := LogoExtension(tt.ct)
			assert.Equal(t, tt.isOK, ok)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestLogoKey(t *testing.T) {
	a := LogoKey("main", "https://example.com/a.png", ".png")
	assert.True(t, strings.HasPrefix(a, "logos/main/"))
	assert.True(t, strings.HasSuffix(a, ".png"))
	assert.Equal(t, a, LogoKey("main", "https://example.com/a.png", ".png"))
	assert.NotEqual(t, a, LogoKey("main", "https://example.com/b.png", ".png"))
}
