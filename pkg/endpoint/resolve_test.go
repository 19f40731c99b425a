package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		rt   Runtime
		want []string
	}{
		{
			name: "empty config yields default fallback",
			want: []string{"/api/blog-tts"},
		},
		{
			name: "production origin",
			rt:   Runtime{Origin: "https://blog.example.com/"},
			want: []string{"https://blog.example.com/api/blog-tts", "/api/blog-tts"},
		},
		{
			name: "override first",
			cfg:  Config{Override: "https://tts.example.com/speak"},
			rt:   Runtime{Origin: "https://blog.example.com"},
			want: []string{"https://tts.example.com/speak", "https://blog.example.com/api/blog-tts", "/api/blog-tts"},
		},
		{
			name: "dev proxy on vite port",
			cfg:  Config{UseDevProxy: true, DevProxyPort: "3000"},
			rt:   Runtime{Origin: "http://localhost:5173"},
			want: []string{"http://localhost:3000/api/blog-tts", "/api/blog-tts"},
		},
		{
			name: "dev proxy disabled on local origin",
			cfg:  Config{DevProxyPort: "3000"},
			rt:   Runtime{Origin: "http://127.0.0.1:5174"},
			want: []string{"/api/blog-tts"},
		},
		{
			name: "local origin on other port skips dev proxy",
			cfg:  Config{UseDevProxy: true, DevProxyPort: "3000"},
			rt:   Runtime{Origin: "http://localhost:8080"},
			want: []string{"/api/blog-tts"},
		},
		{
			name: "duplicates and blanks removed preserving first",
			cfg: Config{
				Override:  "https://blog.example.com/api/blog-tts",
				Fallbacks: []string{"", "/api/blog-tts", " ", "https://blog.example.com/api/blog-tts", "/api/blog-tts"},
			},
			rt:   Runtime{Origin: "https://blog.example.com"},
			want: []string{"https://blog.example.com/api/blog-tts", "/api/blog-tts"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.cfg, tt.rt)
			assert.Equal(t, tt.want, got)

			seen := map[string]bool{}
			for _, c := range got {
				assert.False(t, seen[c], "duplicate candidate %q", c)
				seen[c] = true
			}
		})
	}
}

func TestAbsolute(t *testing.T) {
	assert.Equal(t, "https://blog.example.com/api/blog-tts", Absolute("/api/blog-tts", "https://blog.example.com"))
	assert.Equal(t, "https://tts.example.com/x", Absolute("https://tts.example.com/x", "https://blog.example.com"))
	assert.Equal(t, "/api/blog-tts", Absolute("/api/blog-tts", ""))
}

func TestOriginOf(t *testing.T) {
	assert.Equal(t, "https://blog.example.com", OriginOf("https://blog.example.com/posts/hello?x=1"))
	assert.Equal(t, "http://localhost:5173", OriginOf("http://localhost:5173/blog/a"))
	assert.Equal(t, "", OriginOf("./article.html"))
}
