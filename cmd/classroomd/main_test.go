package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/classroom-core/internal/auth"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestHashPassword(t *testing.T) {
	var buf bytes.Buffer
	if err := hashPassword(&buf, []string{"s3cret"}); err != nil {
		t.Fatalf("hashPassword: %v", err)
	}
	hash := strings.TrimSpace(buf.String())
	ok, err := auth.VerifyPassword("s3cret", hash)
	if err != nil || !ok {
		t.Errorf("VerifyPassword(%q) = %v, %v", hash, ok, err)
	}

	for _, args := range [][]string{nil, {""}, {"a", "b"}} {
		if err := hashPassword(&buf, args); err == nil {
			t.Errorf("hashPassword(%q) should fail", args)
		}
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CLASSROOM_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("CLASSROOM_CONFIG", "/etc/classroom/config.yaml")
	if got := getConfigPath(); got != "/etc/classroom/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("CLASSROOM_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with a missing config file")
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	t.Setenv("CLASSROOM_CONFIG", writeConfig(t, `
site:
  id: ""
database:
  path: ""
`))

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "database.path is required") {
		t.Fatalf("run() error = %v, want validation failure", err)
	}
}

// TestRun_StartupAndShutdown boots the full service against the embedded
// broker and stops it by cancelling the context.
func TestRun_StartupAndShutdown(t *testing.T) {
	brokerPort := freePort(t)
	apiPort := freePort(t)
	dbPath := filepath.Join(t.TempDir(), "classroom.db")

	t.Setenv("CLASSROOM_CONFIG", writeConfig(t, fmt.Sprintf(`
site:
  id: test-room
database:
  path: %q
mqtt:
  broker:
    host: 127.0.0.1
    port: %d
    client_id: classroomd-test
  embedded:
    enabled: true
    address: "127.0.0.1:%d"
api:
  host: 127.0.0.1
  port: %d
logging:
  level: error
  format: text
`, dbPath, brokerPort, brokerPort, apiPort)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", apiPort)
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(healthURL) //nolint:noctx // test polling
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		select {
		case err := <-errCh:
			t.Fatalf("run() exited early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("service did not become healthy")
		}
		time.Sleep(50 * time.Millisecond)
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", apiPort)) //nolint:noctx // test request
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("GET / = %d %s, want the wall panel", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}
