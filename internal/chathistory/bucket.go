package chathistory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yungbote/roomforge-backend/internal/platform/gcp"
)

// BucketStore keeps transcripts as JSON objects next to the project's images, so the
// project prefix purge removes them too.
type BucketStore struct {
	bucket gcp.BucketService
}

func NewBucketStore(bucket gcp.BucketService) *BucketStore {
	return &BucketStore{bucket: bucket}
}

func (s *BucketStore) Load(ctx context.Context, key string) (History, error) {
	rc, err := s.bucket.Download(ctx, key)
	if errors.Is(err, gcp.ErrObjectNotFound) {
		return History{}, nil
	}
	if err != nil {
		return History{}, fmt.Errorf("chat history load %s: %w", key, err)
	}
	defer rc.Close()
	var h History
	if err := json.NewDecoder(rc).Decode(&h); err != nil {
		return History{}, fmt.Errorf("chat history decode %s: %w", key, err)
	}
	return h, nil
}

func (s *BucketStore) Save(ctx context.Context, key string, h History) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("chat history encode %s: %w", key, err)
	}
	return s.bucket.Upload(ctx, key, bytes.NewReader(raw), "application/json")
}

func (s *BucketStore) Delete(ctx context.Context, key string) error {
	return s.bucket.Delete(ctx, key)
}
