package panel

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestAssets_Embedded(t *testing.T) {
	for _, name := range []string{"index.html", "app.js", "style.css"} {
		if _, err := fs.Stat(Assets(), name); err != nil {
			t.Errorf("embedded %s: %v", name, err)
		}
	}
}

func TestHandler_Embedded(t *testing.T) {
	h := Handler("")

	tests := []struct {
		name     string
		path     string
		want     int
		contains string
	}{
		{"root", "/", http.StatusOK, "<!DOCTYPE html>"},
		{"script", "/app.js", http.StatusOK, "/api/v1"},
		{"stylesheet", "/style.css", http.StatusOK, ".card"},
		{"client route falls back", "/rules/morning", http.StatusOK, "<!DOCTYPE html>"},
		{"api path is not swallowed", "/api/v1/nothing", http.StatusNotFound, ""},
		{"api root", "/api", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, h, tt.path)
			if w.Code != tt.want {
				t.Fatalf("GET %s = %d, want %d", tt.path, w.Code, tt.want)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("GET %s body does not contain %q", tt.path, tt.contains)
			}
		})
	}

	if cc := get(t, h, "/").Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}
}

func TestHandler_Directory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<!DOCTYPE html>on disk"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "extra.js"), []byte("let x = 1;"), 0o600); err != nil {
		t.Fatal(err)
	}
	h := Handler(dir)

	if w := get(t, h, "/"); !strings.Contains(w.Body.String(), "on disk") {
		t.Errorf("GET / = %q, want disk index", w.Body.String())
	}
	if w := get(t, h, "/extra.js"); w.Code != http.StatusOK {
		t.Errorf("GET /extra.js = %d", w.Code)
	}
	if w := get(t, h, "/app.js"); !strings.Contains(w.Body.String(), "on disk") {
		t.Error("embedded asset leaked through a directory override")
	}
}

func TestHandler_MissingDirectoryUsesEmbedded(t *testing.T) {
	w := get(t, Handler(filepath.Join(t.TempDir(), "missing")), "/")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Classroom") {
		t.Errorf("GET / = %d %q", w.Code, w.Body.String())
	}
}
