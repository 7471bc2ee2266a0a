package middleware

import (
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		// Static routes - no normalization
		{
			name:     "root path",
			path:     "/",
			expected: "/",
		},
		{
			name:     "hot articles",
			path:     "/api/articles/hot",
			expected: "/api/articles/hot",
		},
		{
			name:     "hot articles page",
			path:     "/api/articles/hot/page",
			expected: "/api/articles/hot/page",
		},
		{
			name:     "health endpoint",
			path:     "/health",
			expected: "/health",
		},
		{
			name:     "ready endpoint",
			path:     "/ready",
			expected: "/ready",
		},
		{
			name:     "metrics endpoint",
			path:     "/metrics",
			expected: "/metrics",
		},

		// Article patterns
		{
			name:     "article by id",
			path:     "/api/articles/123",
			expected: "/api/articles/{id}",
		},
		{
			name:     "article view",
			path:     "/api/articles/123/view",
			expected: "/api/articles/{id}/view",
		},
		{
			name:     "article like",
			path:     "/api/articles/456/like",
			expected: "/api/articles/{id}/like",
		},
		{
			name:     "article comment",
			path:     "/api/articles/789/comment",
			expected: "/api/articles/{id}/comment",
		},
		{
			name:     "article favorite",
			path:     "/api/articles/42/favorite",
			expected: "/api/articles/{id}/favorite",
		},
		{
			name:     "article scores",
			path:     "/api/articles/42/scores",
			expected: "/api/articles/{id}/scores",
		},

		// Edge cases
		{
			name:     "trailing slash",
			path:     "/api/articles/",
			expected: "/api/articles/",
		},
		{
			name:     "unknown route",
			path:     "/unknown/path",
			expected: "/unknown/path",
		},
		{
			name:     "unknown article subresource",
			path:     "/api/articles/123/unknown",
			expected: "/api/articles/123/unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizePath(tt.path)
			if result != tt.expected {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, result, tt.expected)
			}
		})
	}
}

func TestNormalizePath_CardinalityControl(t *testing.T) {
	// Test that different IDs normalize to the same pattern
	paths := []string{
		"/api/articles/1",
		"/api/articles/2",
		"/api/articles/999",
		"/api/articles/123456789",
	}

	expected := "/api/articles/{id}"
	seen := make(map[string]bool)

	for _, path := range paths {
		result := normalizePath(path)
		if result != expected {
			t.Errorf("normalizePath(%q) = %q, want %q", path, result, expected)
		}
		seen[result] = true
	}

	// Should all normalize to the same pattern (low cardinality)
	if len(seen) != 1 {
		t.Errorf("Expected all paths to normalize to single pattern, got %d patterns: %v", len(seen), seen)
	}
}
