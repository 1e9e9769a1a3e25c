package snapshot

import (
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/factory"
	"Go2NetAccounting/internal/model"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// DirLayout names the per-cycle snapshot directory.
const DirLayout = "2006-01-02_15-04-05.000"

const (
	snapshotFile = "traffic.gob"
	summaryFile  = "summary.json"
)

func init() {
	factory.RegisterWriter("gob", func(cfg *config.Config) (model.Writer, error) {
		return NewWriter(cfg.Storage.Gob.RootPath)
	})
}

// Summary holds the metadata of a snapshot, written next to it as JSON.
type Summary struct {
	CycleID         string `json:"cycle_id"`
	Router          string `json:"router"`
	Addresses       int    `json:"addresses"`
	LocalAddresses  int    `json:"local_addresses"`
	BytesSent       uint64 `json:"bytes_sent"`
	BytesReceived   uint64 `json:"bytes_received"`
	PacketsSent     uint64 `json:"packets_sent"`
	PacketsReceived uint64 `json:"packets_received"`
	Timestamp       string `json:"timestamp"`
}

// Writer stores each cycle as a gob snapshot on disk.
type Writer struct {
	rootPath string
}

// NewWriter creates a snapshot writer rooted at rootPath.
func NewWriter(rootPath string) (*Writer, error) {
	if rootPath == "" {
		return nil, fmt.Errorf("gob writer requires storage.gob.root_path")
	}
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot root: %w", err)
	}
	return &Writer{rootPath: rootPath}, nil
}

func (w *Writer) Name() string { return "gob" }

// Write serializes the batch into <root>/<timestamp>/traffic.gob and writes summary.json.
// A retried batch overwrites the files of the failed attempt.
func (w *Writer) Write(ctx context.Context, batch model.TrafficBatch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(batch.Points) == 0 {
		return 0, nil
	}

	// 1. Create timestamped directory
	dir := w.SnapshotDir(batch)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// 2. Write the points
	if err := writeFile(filepath.Join(dir, snapshotFile), func(f *os.File) error {
		return gob.NewEncoder(f).Encode(batch)
	}); err != nil {
		return 0, fmt.Errorf("failed to encode batch to gob: %w", err)
	}

	// 3. Write summary file
	if err := writeFile(filepath.Join(dir, summaryFile), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(summarize(batch))
	}); err != nil {
		return 0, fmt.Errorf("failed to encode summary to json: %w", err)
	}

	return len(batch.Points), nil
}

// SnapshotDir returns the directory a batch is written to.
func (w *Writer) SnapshotDir(batch model.TrafficBatch) string {
	return filepath.Join(w.rootPath, batch.Timestamp.UTC().Format(DirLayout))
}

func (w *Writer) Close() error { return nil }

// ReadSnapshot decodes a traffic.gob file written by Write.
func ReadSnapshot(path string) (model.TrafficBatch, error) {
	var batch model.TrafficBatch
	f, err := os.Open(path)
	if err != nil {
		return batch, err
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(&batch); err != nil {
		return batch, fmt.Errorf("failed to decode snapshot '%s': %w", path, err)
	}
	return batch, nil
}

func summarize(batch model.TrafficBatch) Summary {
	totals := batch.Totals()
	local := 0
	for _, p := range batch.Points {
		if p.Local {
			local++
		}
	}
	return Summary{
		CycleID:         batch.CycleID,
		Router:          batch.Router,
		Addresses:       len(batch.Points),
		LocalAddresses:  local,
		BytesSent:       totals.BytesSent,
		BytesReceived:   totals.BytesReceived,
		PacketsSent:     totals.PacketsSent,
		PacketsReceived: totals.PacketsReceived,
		Timestamp:       batch.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func writeFile(path string, encode func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
