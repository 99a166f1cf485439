// Package datastore is the access layer between the HTTP API and a storage
// backend.
//
// Each operation loads the relevant document fresh from the backend, runs the
// pure query or upsert from package records against it, and, for mutations,
// writes the whole document back. Nothing is cached between operations.
//
// Writers to the snapshot document are serialized with a storage.Locker held
// around the load, upsert, persist sequence. Readers never lock; they rely on
// the backend replacing documents atomically.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/clusterdata/pkg/records"
	"github.com/HatiCode/clusterdata/pkg/storage"
)

// Default document names, matching the files the service has always used.
const (
	DefaultSnapshotName   = "snapshot.json"
	DefaultTimeSeriesName = "time-series.json"
)

// Store labels reported to the Observer.
const (
	StoreSnapshot   = "snapshot"
	StoreTimeSeries = "timeseries"
)

// Operation labels reported to the Observer.
const (
	OpListClusters  = "list_clusters"
	OpGetSnapshots  = "get_snapshots"
	OpGetTimeSeries = "get_timeseries"
	OpPutSnapshot   = "put_snapshot"
)

// ErrWriteFailure wraps every error from persisting a document. The
// previously stored document is still intact when it is returned.
var ErrWriteFailure = errors.New("write failed")

// Observer receives timing and outcome data for every operation.
type Observer interface {
	ObserveOperation(store, op string, duration time.Duration, err error)
	ObserveLockWait(store string, duration time.Duration)
	SetRecords(store string, n int)
}

// Options configures a Store. Zero values select the defaults.
type Options struct {
	SnapshotName   string
	TimeSeriesName string

	// Locker serializes snapshot writers. Defaults to a LocalLocker.
	Locker storage.Locker

	// Observer may be nil.
	Observer Observer

	Logger *slog.Logger
}

// Store exposes the four data operations of the API over one backend.
type Store struct {
	backend        storage.Backend
	locker         storage.Locker
	snapshotName   string
	timeSeriesName string
	observer       Observer
	logger         *slog.Logger
}

// New creates a Store reading and writing documents through backend.
func New(backend storage.Backend, opts Options) *Store {
	if opts.SnapshotName == "" {
		opts.SnapshotName = DefaultSnapshotName
	}
	if opts.TimeSeriesName == "" {
		opts.TimeSeriesName = DefaultTimeSeriesName
	}
	if opts.Locker == nil {
		opts.Locker = storage.NewLocalLocker()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Store{
		backend:        backend,
		locker:         opts.Locker,
		snapshotName:   opts.SnapshotName,
		timeSeriesName: opts.TimeSeriesName,
		observer:       opts.Observer,
		logger:         opts.Logger,
	}
}

// Backend returns the backend the store was created with.
func (s *Store) Backend() storage.Backend { return s.backend }

// Ping checks that the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return storage.Ping(ctx, s.backend)
}

// LoadSnapshots reads and decodes the snapshot document.
//
// Errors wrap storage.ErrNotFound when the document does not exist,
// records.ErrParse when it is not JSON, and records.ErrSchema when its shape
// is wrong.
func (s *Store) LoadSnapshots(ctx context.Context) (*records.SnapshotDocument, error) {
	data, err := s.backend.Read(ctx, s.snapshotName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.snapshotName, err)
	}
	doc, err := records.DecodeSnapshotDocument(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.snapshotName, err)
	}
	s.observer.SetRecords(StoreSnapshot, len(doc.Snapshots))
	return doc, nil
}

// LoadTimeSeries reads and decodes the time-series document. Errors are
// classified as for LoadSnapshots.
func (s *Store) LoadTimeSeries(ctx context.Context) (*records.TimeSeriesDocument, error) {
	data, err := s.backend.Read(ctx, s.timeSeriesName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.timeSeriesName, err)
	}
	doc, err := records.DecodeTimeSeriesDocument(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.timeSeriesName, err)
	}
	s.observer.SetRecords(StoreTimeSeries, len(doc.TimeSeries))
	return doc, nil
}

// persistSnapshots replaces the stored snapshot document with doc.
func (s *Store) persistSnapshots(ctx context.Context, doc *records.SnapshotDocument) error {
	data, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrWriteFailure, s.snapshotName, err)
	}
	if err := s.backend.Write(ctx, s.snapshotName, data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailure, s.snapshotName, err)
	}
	s.observer.SetRecords(StoreSnapshot, len(doc.Snapshots))
	return nil
}

// ListClusters returns the id and name of every snapshot record in stored
// order.
func (s *Store) ListClusters(ctx context.Context) (_ []records.ClusterSummary, err error) {
	defer s.observe(StoreSnapshot, OpListClusters, time.Now(), &err)

	doc, err := s.LoadSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	return records.Summaries(doc), nil
}

// GetSnapshots returns every snapshot record whose normalized cluster_id
// equals clusterID. Only stored ids are normalized: a stored 5 or 5.0 matches
// "5", while the query "5.0" only matches a stored string "5.0".
func (s *Store) GetSnapshots(ctx context.Context, clusterID string) (_ []records.Record, err error) {
	defer s.observe(StoreSnapshot, OpGetSnapshots, time.Now(), &err)

	if err := records.RequireClusterID(clusterID); err != nil {
		return nil, err
	}
	doc, err := s.LoadSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	return records.FilterByClusterID(doc, clusterID), nil
}

// GetTimeSeries returns every series stored for the cluster and metric type.
func (s *Store) GetTimeSeries(ctx context.Context, clusterID, metricType string) (_ []records.TimeSeriesRecord, err error) {
	defer s.observe(StoreTimeSeries, OpGetTimeSeries, time.Now(), &err)

	if err := records.RequireSeriesKey(clusterID, metricType); err != nil {
		return nil, err
	}
	doc, err := s.LoadTimeSeries(ctx)
	if err != nil {
		return nil, err
	}
	return records.FilterTimeSeries(doc, clusterID, metricType), nil
}

// PutSnapshot inserts rec or merges it into the stored record with the same
// cluster_id, and returns rec as submitted.
//
// rec is validated before the backend is touched. The snapshot lock is held
// from load to persist, so concurrent calls apply one after another in lock
// order and none of them is lost.
func (s *Store) PutSnapshot(ctx context.Context, rec records.Record) (_ records.Record, err error) {
	defer s.observe(StoreSnapshot, OpPutSnapshot, time.Now(), &err)

	if err := records.ValidateSnapshot(rec); err != nil {
		return nil, err
	}

	waitStart := time.Now()
	unlock, err := s.locker.Lock(ctx, s.snapshotName)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", s.snapshotName, err)
	}
	s.observer.ObserveLockWait(StoreSnapshot, time.Since(waitStart))
	defer func() {
		if uerr := unlock(); uerr != nil {
			s.logger.Warn("failed to release snapshot lock", "document", s.snapshotName, "error", uerr)
		}
	}()

	doc, err := s.LoadSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	before := len(doc.Snapshots)

	submitted, err := records.Upsert(doc, rec)
	if err != nil {
		return nil, err
	}
	if err := s.persistSnapshots(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Debug("snapshot upserted",
		"cluster_id", rec.ClusterID(),
		"inserted", len(doc.Snapshots) > before,
		"records", len(doc.Snapshots),
	)
	return submitted, nil
}

func (s *Store) observe(store, op string, start time.Time, err *error) {
	s.observer.ObserveOperation(store, op, time.Since(start), *err)
}

// Outcome classifies an operation error for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case records.IsValidation(err):
		return "invalid"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, records.ErrSchema), errors.Is(err, records.ErrParse):
		return "malformed"
	case errors.Is(err, ErrWriteFailure):
		return "write_failed"
	default:
		return "error"
	}
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, time.Duration, error) {}
func (nopObserver) ObserveLockWait(string, time.Duration)                 {}
func (nopObserver) SetRecords(string, int)                                {}
