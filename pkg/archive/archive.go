// Package archive stores emitted worklist streams in an object store. The
// memory backend serves tests, the filesystem backend local installations and
// the S3 backend shared robot workstations.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/helixyte/TheLMA-sub008/pkg/engine"
	"github.com/helixyte/TheLMA-sub008/pkg/telemetry"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// Driver identifies an object store backend.
type Driver string

const (
	DriverMemory     Driver = "memory" // in-memory (tests)
	DriverFilesystem Driver = "fs"     // local directory
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
)

// ContentType is the media type of encoded streams.
const ContentType = "application/x-ndjson"

// ErrExists is returned when a key is written twice.
var ErrExists = errors.New("archive: object already exists")

// ErrNotFound is returned for missing keys.
var ErrNotFound = errors.New("archive: object not found")

// Info describes a stored object.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the minimal object store used for emission streams. Objects are
// write-once.
type Store interface {
	// Put stores a new object at key. It fails with ErrExists if the key is taken.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	// Get returns the object contents. Missing keys yield ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns objects whose key has prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	// Driver returns the backend identifier.
	Driver() Driver
}

// Sink writes emission streams to a Store. It implements engine.StreamSink.
type Sink struct {
	store Store
}

var _ engine.StreamSink = (*Sink)(nil)

// NewSink creates a sink on store.
func NewSink(store Store) *Sink {
	return &Sink{store: store}
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StreamKey returns the object key of a stream within a run.
func StreamKey(runID string, s *worklist.Stream) string {
	label := strings.Trim(unsafeKeyChars.ReplaceAllString(s.Label, "_"), "_")
	if label == "" {
		label = string(s.Variant)
	}
	return fmt.Sprintf("%s/%03d-%s.jsonl", runID, s.Index, label)
}

// WriteStream encodes s as JSON lines and stores it under the run prefix.
func (k *Sink) WriteStream(ctx context.Context, runID string, s *worklist.Stream) error {
	var buf bytes.Buffer
	if err := worklist.NewStreamEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("failed to encode stream %d: %w", s.Index, err)
	}
	key := StreamKey(runID, s)
	info, err := k.store.Put(ctx, key, &buf, ContentType)
	if err != nil {
		return fmt.Errorf("failed to store stream %s: %w", key, err)
	}
	telemetry.FromContext(ctx).NewComponentLogger("archive").
		WithField("key", info.Key).
		WithField("driver", string(k.store.Driver())).
		Debugf("stored stream with %d records (%d bytes)", len(s.Records), info.Size)
	return nil
}

// ReadStreams decodes every stream stored for a run in index order.
func (k *Sink) ReadStreams(ctx context.Context, runID string) ([]*worklist.Stream, error) {
	infos, err := k.store.List(ctx, runID+"/")
	if err != nil {
		return nil, err
	}
	streams := make([]*worklist.Stream, 0, len(infos))
	for _, info := range infos {
		s, err := k.readStream(ctx, info.Key)
		if err != nil {
			return nil, err
		}
		streams = append(streams, s)
	}
	return streams, nil
}

func (k *Sink) readStream(ctx context.Context, key string) (*worklist.Stream, error) {
	rc, err := k.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	s, err := worklist.NewStreamDecoder(rc).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return s, nil
}
