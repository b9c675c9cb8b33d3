// Package results reads and writes retraining artifacts in object storage: training
// sets, metrics CSV files, trained models and the stored retraining query.
package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kiranshivaraju/retrainer/internal/blobstore"
	"github.com/kiranshivaraju/retrainer/pkg/models"
)

var (
	// ErrNotFound is returned for a missing local file, a missing blob or an unsupported training set extension.
	ErrNotFound = errors.New("not found")
	// ErrParse is returned when a metrics file is malformed.
	ErrParse = errors.New("malformed metrics")
)

// QueryBlobName is the fixed name of the stored retraining query.
const QueryBlobName = "sqlquery.sql"

const (
	resultExt = ".csv"
	modelExt  = ".ilearner"
)

var trainingExts = []string{".csv", ".nh.csv", ".tsv", ".nh.tsv"}

// Store manages retraining artifacts in a single container.
// It holds no per-run state, so one Store can serve concurrent runs.
type Store struct {
	bucket  blobstore.Bucket
	connStr string
	prefix  string
}

// New creates a Store. connectionString is embedded in every BlobReference it returns;
// prefix scopes result and model blobs (e.g. "retrainer-").
func New(bucket blobstore.Bucket, connectionString, prefix string) *Store {
	return &Store{bucket: bucket, connStr: connectionString, prefix: prefix}
}

// Container returns the name of the underlying container.
func (s *Store) Container() string {
	return s.bucket.Name()
}

// Reference returns a connection-string BlobReference for key in this container.
func (s *Store) Reference(key string) models.BlobReference {
	return models.BlobReference{
		ConnectionString: s.connStr,
		RelativeLocation: "/" + s.bucket.Name() + "/" + key,
	}
}

func (s *Store) keyOf(ref models.BlobReference) string {
	return strings.TrimPrefix(ref.RelativeLocation, "/"+s.bucket.Name()+"/")
}

// NewModelName returns the identifier used for the outputs of a run started at now.
// The UTC timestamp is zero-padded so that names sort chronologically.
func (s *Store) NewModelName(now time.Time) string {
	return s.prefix + now.UTC().Format("20060102T150405Z")
}

// UploadTrainingFile uploads the file at path under its base name.
// Storage is not contacted when the file does not exist.
func (s *Store) UploadTrainingFile(ctx context.Context, path string) (models.BlobReference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.BlobReference{}, fmt.Errorf("%w: training file %s", ErrNotFound, path)
		}
		return models.BlobReference{}, fmt.Errorf("reading training file: %w", err)
	}

	name := filepath.Base(path)
	if err := s.bucket.Put(ctx, name, data); err != nil {
		return models.BlobReference{}, fmt.Errorf("uploading training file: %w", err)
	}

	slog.Info("training file uploaded", "blob", name, "bytes", len(data))
	return s.Reference(name), nil
}

// LocateTrainingBlob returns a reference to an existing training set in the container.
func (s *Store) LocateTrainingBlob(ctx context.Context, name string) (models.BlobReference, error) {
	if !hasTrainingExt(name) {
		return models.BlobReference{}, fmt.Errorf("%w: %s is not a supported extension type (like csv or tsv)", ErrNotFound, name)
	}

	ok, err := s.bucket.Exists(ctx, name)
	if err != nil {
		return models.BlobReference{}, fmt.Errorf("checking training blob: %w", err)
	}
	if !ok {
		return models.BlobReference{}, fmt.Errorf("%w: blob %s", ErrNotFound, name)
	}
	return s.Reference(name), nil
}

func hasTrainingExt(name string) bool {
	for _, ext := range trainingExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// ListResultBlobs returns every result file under the prefix, newest first.
// Newest is approximated by descending lexicographic order of the blob path.
// Storage errors are logged and yield an empty list.
func (s *Store) ListResultBlobs(ctx context.Context) []models.BlobReference {
	refs, err := s.listResults(ctx)
	if err != nil {
		slog.Error("listing result blobs failed", "container", s.bucket.Name(), "error", err)
		return []models.BlobReference{}
	}
	return refs
}

func (s *Store) listResults(ctx context.Context) ([]models.BlobReference, error) {
	keys, err := s.bucket.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}

	refs := make([]models.BlobReference, 0, len(keys))
	for _, k := range keys {
		if strings.HasSuffix(k, resultExt) {
			refs = append(refs, s.Reference(k))
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].RelativeLocation > refs[j].RelativeLocation
	})
	return refs, nil
}

// LatestMetrics returns the metrics of the newest result file.
// It returns models.NoMetrics() when there is no result yet, and an empty
// non-nil snapshot when the lookup fails.
func (s *Store) LatestMetrics(ctx context.Context) models.MetricsSnapshot {
	refs, err := s.listResults(ctx)
	if err != nil {
		slog.Error("loading latest metrics failed", "container", s.bucket.Name(), "error", err)
		return models.MetricsSnapshot{}
	}
	if len(refs) == 0 {
		return models.NoMetrics()
	}

	snap, err := s.readMetrics(ctx, refs[0])
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		return models.NoMetrics()
	case err != nil:
		slog.Error("loading latest metrics failed", "blob", refs[0].RelativeLocation, "error", err)
		return models.MetricsSnapshot{}
	}
	return snap
}

// RunMetrics returns the metrics written by the job whose outputs are named modelName.
// It returns nil when the newest result file belongs to another run, and an empty
// non-nil snapshot when the lookup fails.
func (s *Store) RunMetrics(ctx context.Context, modelName string) models.MetricsSnapshot {
	refs, err := s.listResults(ctx)
	if err != nil {
		slog.Error("loading run metrics failed", "container", s.bucket.Name(), "error", err)
		return models.MetricsSnapshot{}
	}

	want := modelName + resultExt
	if len(refs) == 0 || s.keyOf(refs[0]) != want {
		newest := ""
		if len(refs) > 0 {
			newest = refs[0].RelativeLocation
		}
		slog.Warn("newest result is not this run's output", "expected", want, "newest", newest)
		return nil
	}

	snap, err := s.readMetrics(ctx, refs[0])
	if err != nil {
		slog.Error("loading run metrics failed", "blob", refs[0].RelativeLocation, "error", err)
		return models.MetricsSnapshot{}
	}
	return snap
}

// LatestRawResultText returns the newest result file verbatim.
func (s *Store) LatestRawResultText(ctx context.Context) (string, bool) {
	refs, err := s.listResults(ctx)
	if err != nil {
		slog.Warn("reading latest result failed", "container", s.bucket.Name(), "error", err)
		return "", false
	}
	if len(refs) == 0 {
		return "", false
	}

	data, err := s.bucket.Get(ctx, s.keyOf(refs[0]))
	if err != nil {
		slog.Warn("reading latest result failed", "blob", refs[0].RelativeLocation, "error", err)
		return "", false
	}
	return string(data), true
}

// AllResults returns the metrics of every result file, newest first.
// Unreadable files are logged and skipped.
func (s *Store) AllResults(ctx context.Context) []models.MetricsSnapshot {
	refs := s.ListResultBlobs(ctx)

	out := make([]models.MetricsSnapshot, 0, len(refs))
	for _, ref := range refs {
		snap, err := s.readMetrics(ctx, ref)
		if err != nil {
			slog.Warn("skipping result file", "blob", ref.RelativeLocation, "error", err)
			continue
		}
		out = append(out, snap)
	}
	return out
}

func (s *Store) readMetrics(ctx context.Context, ref models.BlobReference) (models.MetricsSnapshot, error) {
	data, err := s.bucket.Get(ctx, s.keyOf(ref))
	if err != nil {
		return nil, err
	}
	return ParseMetrics(string(data))
}

// DeleteAllResultsAndModels removes every result and model file under the prefix.
// Deletion is best-effort: failures are logged and skipped. Returns the number deleted.
func (s *Store) DeleteAllResultsAndModels(ctx context.Context) int {
	keys, err := s.bucket.List(ctx, s.prefix)
	if err != nil {
		slog.Error("listing blobs for deletion failed", "container", s.bucket.Name(), "error", err)
		return 0
	}

	deleted := 0
	for _, k := range keys {
		if !strings.HasSuffix(k, resultExt) && !strings.HasSuffix(k, modelExt) {
			continue
		}
		if err := s.bucket.Delete(ctx, k); err != nil {
			slog.Warn("deleting blob failed", "blob", k, "error", err)
			continue
		}
		deleted++
	}

	slog.Info("deleted results and models", "container", s.bucket.Name(), "count", deleted)
	return deleted
}

// StoreQuery uploads the file at path as the stored retraining query.
// Failures are logged, not returned.
func (s *Store) StoreQuery(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("reading query file failed", "path", path, "error", err)
		return
	}
	if err := s.SaveQuery(ctx, string(data)); err != nil {
		slog.Warn("storing query failed", "error", err)
	}
}

// SaveQuery replaces the stored retraining query with text.
func (s *Store) SaveQuery(ctx context.Context, text string) error {
	if err := s.bucket.Put(ctx, QueryBlobName, []byte(text)); err != nil {
		return fmt.Errorf("saving query: %w", err)
	}
	slog.Info("query stored", "blob", QueryBlobName, "bytes", len(text))
	return nil
}

// LoadQuery returns the stored retraining query.
func (s *Store) LoadQuery(ctx context.Context) (string, bool) {
	data, err := s.bucket.Get(ctx, QueryBlobName)
	if err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			slog.Warn("loading query failed", "error", err)
		}
		return "", false
	}
	return string(data), true
}
