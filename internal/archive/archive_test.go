package archive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"darkroom/internal/config"
	"darkroom/internal/services"
	"darkroom/internal/testsupport"
)

func TestKeyFor(t *testing.T) {
	root := filepath.Join("lib", "gold")
	cases := map[string]string{
		filepath.Join(root, "2024", "05", "beach.jpg"): "2024/05/beach.jpg",
		filepath.Join("elsewhere", "x.jpg"):            "x.jpg",
	}
	for file, want := range cases {
		if got := KeyFor(root, file); got != want {
			t.Errorf("KeyFor(%q) = %q, want %q", file, got, want)
		}
	}
}

func TestLocalPutAndExists(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(t.TempDir(), "beach.jpg")
	want := testsupport.WriteJPEG(t, src, testsupport.JPEGOptions{Seed: 1, Width: 16, Height: 16})

	store := NewLocal(root, nil)
	ctx := context.Background()
	if ok, err := store.Exists(ctx, "2024/05/beach.jpg"); err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
	location, err := store.Put(ctx, "2024/05/beach.jpg", src)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := os.ReadFile(location)
	if err != nil {
		t.Fatalf("read archived file: %v", err)
	}
	if string(got) != string(want) {
		t.Fatal("archived bytes differ from source")
	}
	if ok, err := store.Exists(ctx, "2024/05/beach.jpg"); err != nil || !ok {
		t.Fatalf("expected archived key, ok=%v err=%v", ok, err)
	}
}

func TestLocalRejectsEscapingKey(t *testing.T) {
	store := NewLocal(t.TempDir(), nil)
	_, err := store.Put(context.Background(), "../outside.jpg", "unused")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	got, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got.Name() != "local" {
		t.Fatalf("expected local backend, got %s", got.Name())
	}

	cfg.Archive.Backend = "tape"
	if _, err := New(context.Background(), cfg, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	cfg.Archive.Backend = config.ArchiveBackendS3
	if _, err := New(context.Background(), cfg, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected missing bucket to fail, got %v", err)
	}
}

func TestS3PutAndExists(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))

	var mu sync.Mutex
	objects := map[string]bool{}
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPut:
			objects[r.URL.Path] = true
			w.Header().Set("ETag", `"abc"`)
			w.WriteHeader(http.StatusOK)
		case http.MethodHead:
			if objects[r.URL.Path] {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer server.Close()

	store, err := NewS3(context.Background(), config.S3{
		Endpoint:  server.URL,
		Region:    "garage",
		Bucket:    "photos",
		Prefix:    "/gold/",
		AccessKey: "key",
		SecretKey: "secret",
		PathStyle: true,
	}, nil)
	if err != nil {
		t.Fatalf("NewS3 failed: %v", err)
	}

	src := filepath.Join(dir, "beach.jpg")
	testsupport.WriteJPEG(t, src, testsupport.JPEGOptions{Seed: 2, Width: 16, Height: 16})

	ctx := context.Background()
	location, err := store.Put(ctx, "2024/05/beach.jpg", src)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if location != "s3://photos/gold/2024/05/beach.jpg" {
		t.Fatalf("unexpected location %q", location)
	}
	if ok, err := store.Exists(ctx, "2024/05/beach.jpg"); err != nil || !ok {
		t.Fatalf("expected object to exist, ok=%v err=%v", ok, err)
	}
	if ok, err := store.Exists(ctx, "2024/05/missing.jpg"); err != nil || ok {
		t.Fatalf("expected missing object, ok=%v err=%v", ok, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(requests) == 0 || requests[0] != "PUT /photos/gold/2024/05/beach.jpg" {
		t.Fatalf("unexpected requests: %v", requests)
	}
}
