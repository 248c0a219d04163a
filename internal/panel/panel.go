package panel

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

//go:embed web
var embedded embed.FS

// Assets returns the embedded dashboard files rooted at web/.
func Assets() fs.FS {
	sub, err := fs.Sub(embedded, "web")
	if err != nil {
		// web is a literal embed directory; Sub cannot fail for it.
		panic("panel: " + err.Error())
	}
	return sub
}

// Handler serves the dashboard. A non-empty dir that exists on disk takes
// precedence over the embedded assets.
func Handler(dir string) http.Handler {
	assets := Assets()
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			assets = os.DirFS(dir)
		}
	}
	files := http.FileServerFS(assets)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "api" || strings.HasPrefix(name, "api/") {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "no-cache")
		if name == "" || !exists(assets, name) {
			http.ServeFileFS(w, r, assets, "index.html")
			return
		}
		files.ServeHTTP(w, r)
	})
}

func exists(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
