package archive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestS3Storage_ImplementsStorage(t *testing.T) {
	var _ Storage = (*S3Storage)(nil)
}

func TestS3Config_Key(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "file.txt", "file.txt"},
		{"archive", "file.txt", "archive/file.txt"},
		{"archive/", "file.txt", "archive/file.txt"},
	}

	for _, tt := range tests {
		s := &S3Storage{prefix: strings.TrimSuffix(tt.prefix, "/")}
		got := s.key(tt.path)
		if got != tt.want {
			t.Errorf("key(%q) with prefix %q = %q, want %q", tt.path, tt.prefix, got, tt.want)
		}
	}
}

func TestS3Storage_ModTime(t *testing.T) {
	modified := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path != "/bucket/cache/calendar/week.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewS3(S3Config{
		Bucket:    "bucket",
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		AccessKey: "key",
		SecretKey: "secret",
		Prefix:    "cache/",
	})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}

	ctx := context.Background()
	got, err := s.ModTime(ctx, "calendar/week.json")
	if err != nil {
		t.Fatalf("ModTime: %v", err)
	}
	if !got.Equal(modified) {
		t.Errorf("got %v, want %v", got, modified)
	}

	if _, err := s.ModTime(ctx, "calendar/other.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if exists, err := s.Exists(ctx, "calendar/other.json"); exists || err != nil {
		t.Errorf("expected missing object, got exists=%v err=%v", exists, err)
	}
}
