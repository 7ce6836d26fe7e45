package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

// PositionSource exposes every position held by the ledger.
type PositionSource interface {
	All() []domain.Position
}

// Snapshot is the JSON document written to object storage.
type Snapshot struct {
	TakenAt   time.Time                     `json:"taken_at"`
	Counts    map[domain.PositionStatus]int `json:"counts"`
	Positions []domain.Position             `json:"positions"`
}

// Archiver copies the ledger to cold storage. Objects are keyed
// ledger/<yyyy-mm-dd>/<unix-nanos>.json.
type Archiver struct {
	blob   domain.BlobWriter
	source PositionSource
	every  time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewArchiver creates an Archiver that snapshots at most once per every.
func NewArchiver(blob domain.BlobWriter, source PositionSource, every time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:   blob,
		source: source,
		every:  every,
		logger: logger.With(slog.String("component", "archiver")),
		now:    time.Now,
	}
}

// MaybeSnapshot writes a snapshot if the previous one is older than the
// configured interval. It reports whether a snapshot was written.
func (a *Archiver) MaybeSnapshot(ctx context.Context) (bool, error) {
	a.mu.Lock()
	due := a.last.IsZero() || a.now().Sub(a.last) >= a.every
	a.mu.Unlock()
	if !due {
		return false, nil
	}
	if _, err := a.Snapshot(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Snapshot writes the current ledger and returns the object path.
func (a *Archiver) Snapshot(ctx context.Context) (string, error) {
	now := a.now().UTC()
	positions := a.source.All()

	snap := Snapshot{
		TakenAt:   now,
		Counts:    make(map[domain.PositionStatus]int),
		Positions: positions,
	}
	for _, p := range positions {
		snap.Counts[p.Status]++
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("archiver: marshal snapshot: %w", err)
	}

	path := snapshotPath(now)
	if err := a.blob.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("archiver: upload %s: %w", path, err)
	}

	a.mu.Lock()
	a.last = now
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "ledger snapshot written",
		slog.String("path", path),
		slog.Int("positions", len(positions)),
	)
	return path, nil
}

const snapshotPrefix = "ledger/"

func snapshotPath(t time.Time) string {
	return fmt.Sprintf("%s%s/%d.json", snapshotPrefix, t.Format("2006-01-02"), t.UnixNano())
}

// LoadLatestSnapshot reads the newest snapshot under ledger/. Paths sort
// chronologically, so the lexically greatest key is the latest. It returns
// domain.ErrNotFound when no snapshot exists.
func LoadLatestSnapshot(ctx context.Context, reader domain.BlobReader) (Snapshot, error) {
	infos, err := reader.List(ctx, snapshotPrefix)
	if err != nil {
		return Snapshot{}, fmt.Errorf("archiver: list snapshots: %w", err)
	}
	latest := ""
	for _, info := range infos {
		if strings.HasSuffix(info.Path, ".json") && info.Path > latest {
			latest = info.Path
		}
	}
	if latest == "" {
		return Snapshot{}, fmt.Errorf("archiver: no snapshot: %w", domain.ErrNotFound)
	}

	body, err := reader.Get(ctx, latest)
	if err != nil {
		return Snapshot{}, fmt.Errorf("archiver: get %s: %w", latest, err)
	}
	defer body.Close()

	var snap Snapshot
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("archiver: decode %s: %w", latest, err)
	}
	return snap, nil
}
