package pipeline

import (
	"bytes"
	"context"
	"errors"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

type memBlob struct {
	paths   []string
	last    []byte
	objects map[string][]byte
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.paths = append(m.paths, path)
	m.last = b
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[path] = b
	return nil
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

type staticSource []domain.Position

func (s staticSource) All() []domain.Position { return s }

func TestArchiverSnapshot(t *testing.T) {
	blob := &memBlob{}
	src := staticSource{
		{ID: "p1", Status: domain.PositionStatusActive},
		{ID: "p2", Status: domain.PositionStatusRedeemed},
		{ID: "p3", Status: domain.PositionStatusRedeemed},
	}
	a := NewArchiver(blob, src, time.Hour, testLogger())
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	path, err := a.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(path, "ledger/2026-10-19/") || !strings.HasSuffix(path, ".json") {
		t.Fatalf("path = %s", path)
	}

	var snap Snapshot
	if err := json.Unmarshal(blob.last, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Positions) != 3 || snap.Counts[domain.PositionStatusRedeemed] != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestArchiverMaybeSnapshotRespectsInterval(t *testing.T) {
	blob := &memBlob{}
	a := NewArchiver(blob, staticSource{}, time.Hour, testLogger())
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	ctx := context.Background()
	for i, want := range []bool{true, false} {
		got, err := a.MaybeSnapshot(ctx)
		if err != nil || got != want {
			t.Fatalf("call %d: got %v, %v", i, got, err)
		}
	}
	now = now.Add(time.Hour)
	if got, _ := a.MaybeSnapshot(ctx); !got {
		t.Fatal("snapshot due after interval")
	}
	if len(blob.paths) != 2 {
		t.Fatalf("uploads = %d", len(blob.paths))
	}
}

func TestLoadLatestSnapshot(t *testing.T) {
	blob := &memBlob{}
	ctx := context.Background()

	if _, err := LoadLatestSnapshot(ctx, blob); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("empty store err = %v", err)
	}

	a := NewArchiver(blob, staticSource{{ID: "old"}}, time.Hour, testLogger())
	a.now = func() time.Time { return time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC) }
	if _, err := a.Snapshot(ctx); err != nil {
		t.Fatal(err)
	}
	a.source = staticSource{{ID: "new", Status: domain.PositionStatusActive}}
	a.now = func() time.Time { return time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC) }
	if _, err := a.Snapshot(ctx); err != nil {
		t.Fatal(err)
	}

	snap, err := LoadLatestSnapshot(ctx, blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Positions) != 1 || snap.Positions[0].ID != "new" {
		t.Fatalf("latest = %+v", snap)
	}
}
