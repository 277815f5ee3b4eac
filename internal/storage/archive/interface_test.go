package archive

import (
	"context"
	"testing"
	"time"

	"github.com/newthinker/aurum/internal/config"
)

func TestNew_Backends(t *testing.T) {
	local, err := New(config.ArchiveConfig{Type: "localfs", Path: t.TempDir()})
	if err != nil {
		t.Fatalf("New localfs: %v", err)
	}
	if _, ok := local.(*LocalFS); !ok {
		t.Errorf("expected *LocalFS, got %T", local)
	}

	remote, err := New(config.ArchiveConfig{Type: "s3", S3: config.S3Config{Bucket: "b", Region: "us-east-1"}})
	if err != nil {
		t.Fatalf("New s3: %v", err)
	}
	if _, ok := remote.(*S3Storage); !ok {
		t.Errorf("expected *S3Storage, got %T", remote)
	}

	if _, err := New(config.ArchiveConfig{Type: "ftp"}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestReadFresh(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := ReadFresh(ctx, fs, "calendar/week.json", time.Hour, time.Now()); ok || err != nil {
		t.Fatalf("missing object should be a miss, got ok=%v err=%v", ok, err)
	}

	if err := fs.Write(ctx, "calendar/week.json", []byte(`[]`)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, ok, err := ReadFresh(ctx, fs, "calendar/week.json", time.Hour, time.Now())
	if err != nil || !ok {
		t.Fatalf("expected fresh hit, got ok=%v err=%v", ok, err)
	}
	if string(data) != "[]" {
		t.Errorf("unexpected data %q", data)
	}

	if _, ok, _ := ReadFresh(ctx, fs, "calendar/week.json", time.Hour, time.Now().Add(61*time.Minute)); ok {
		t.Error("expected stale object to be a miss")
	}
}
