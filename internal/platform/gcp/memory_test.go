package gcp

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryBucketDeletePrefix(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBucket()
	for _, k := range []string{"projects/a/photos/1.jpg", "projects/a/options/0.png", "projects/ab/photos/1.jpg"} {
		if err := b.Upload(ctx, k, strings.NewReader("x"), ""); err != nil {
			t.Fatalf("Upload(%s): %v", k, err)
		}
	}
	n, err := b.DeletePrefix(ctx, "projects/a/")
	if err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	if n != 2 || b.Len() != 1 {
		t.Fatalf("DeletePrefix: deleted=%d remaining=%d", n, b.Len())
	}
	if _, err := b.DeletePrefix(ctx, "/"); err == nil {
		t.Fatalf("DeletePrefix: expected refusal for empty prefix")
	}
}

func TestMemoryBucketDownload(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBucket()
	if _, err := b.Download(ctx, "missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Download(missing): want ErrObjectNotFound, got %v", err)
	}
	_ = b.Upload(ctx, "projects/a/scan/room.usdz", strings.NewReader("scan"), "")
	rc, err := b.Download(ctx, "projects/a/scan/room.usdz")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "scan" {
		t.Fatalf("Download: got %q", body)
	}
	if err := b.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("Delete(missing): %v", err)
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"projects/a/photos/x.JPG":   "image/jpeg",
		"projects/a/options/0.png":  "image/png",
		"projects/a/scan/room.usdz": "model/vnd.usdz+zip",
		"projects/a/chat/history":   "",
	}
	for key, want := range cases {
		if got := ContentTypeForKey(key); got != want {
			t.Fatalf("ContentTypeForKey(%s): want=%q got=%q", key, want, got)
		}
	}
}
