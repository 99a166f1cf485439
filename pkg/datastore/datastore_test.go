package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/HatiCode/clusterdata/pkg/records"
	"github.com/HatiCode/clusterdata/pkg/storage"
)

const snapshotFixture = `{
  "snapshots": [
    {"cluster_id": "c1", "cluster_name": "alpha", "policy": "daily"},
    {"cluster_id": 42, "cluster_name": "numeric"},
    {"cluster_id": "c2"}
  ]
}`

const timeSeriesFixture = `{
  "time_series": [
    {"cluster_id": "c1", "type": "Throughput", "data": [{"datetime": "2024-01-01T00:00:00Z", "read": 1.5, "write": 2}]},
    {"cluster_id": "c1", "type": "IOPS", "data": []},
    {"cluster_id": "c1", "type": "Throughput", "data": []}
  ]
}`

func newTestStore(t *testing.T, backend storage.Backend) *Store {
	t.Helper()
	return New(backend, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func seededBackend(t *testing.T) *storage.MemoryBackend {
	t.Helper()
	m := storage.NewMemoryBackend()
	ctx := context.Background()
	if err := m.Write(ctx, DefaultSnapshotName, []byte(snapshotFixture)); err != nil {
		t.Fatal(err)
	}
	if err := m.Write(ctx, DefaultTimeSeriesName, []byte(timeSeriesFixture)); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestListClusters(t *testing.T) {
	s := newTestStore(t, seededBackend(t))

	got, err := s.ListClusters(context.Background())
	if err != nil {
		t.Fatalf("ListClusters() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ClusterID != "c1" || got[0].ClusterName != "alpha" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[2].ClusterName != nil {
		t.Errorf("got[2].ClusterName = %v, want nil", got[2].ClusterName)
	}
}

func TestGetSnapshots(t *testing.T) {
	s := newTestStore(t, seededBackend(t))
	ctx := context.Background()

	tests := []struct {
		id   string
		want int
	}{
		{"c1", 1},
		{"42", 1},
		{"42.0", 0},
		{"042", 0},
		{"missing", 0},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := s.GetSnapshots(ctx, tt.id)
			if err != nil {
				t.Fatalf("GetSnapshots() error = %v", err)
			}
			if got == nil {
				t.Fatal("GetSnapshots() returned nil slice")
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestGetTimeSeries(t *testing.T) {
	s := newTestStore(t, seededBackend(t))

	got, err := s.GetTimeSeries(context.Background(), "c1", "Throughput")
	if err != nil {
		t.Fatalf("GetTimeSeries() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if samples := got[0].Samples(); len(samples) != 1 || samples[0].Read != 1.5 {
		t.Errorf("got[0].Samples() = %+v", samples)
	}

	none, err := s.GetTimeSeries(context.Background(), "c1", "Latency")
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("GetTimeSeries() = %v, want empty slice", none)
	}
}

func TestValidationDoesNotTouchStorage(t *testing.T) {
	m := seededBackend(t)
	s := newTestStore(t, m)
	ctx := context.Background()
	baseReads, baseWrites := m.Counts()

	if _, err := s.GetSnapshots(ctx, ""); !records.IsValidation(err) {
		t.Errorf("GetSnapshots(\"\") error = %v, want validation error", err)
	}
	if _, err := s.GetTimeSeries(ctx, "c1", ""); !records.IsValidation(err) {
		t.Errorf("GetTimeSeries(c1, \"\") error = %v, want validation error", err)
	}
	if _, err := s.GetTimeSeries(ctx, "", "IOPS"); !records.IsValidation(err) {
		t.Errorf("GetTimeSeries(\"\", IOPS) error = %v, want validation error", err)
	}
	if _, err := s.PutSnapshot(ctx, records.Record{"cluster_name": "x"}); !records.IsValidation(err) {
		t.Errorf("PutSnapshot() error = %v, want validation error", err)
	}

	reads, writes := m.Counts()
	if reads != baseReads || writes != baseWrites {
		t.Errorf("backend touched: reads %d->%d, writes %d->%d", baseReads, reads, baseWrites, writes)
	}
}

func TestPutSnapshot_InsertAndMerge(t *testing.T) {
	s := newTestStore(t, seededBackend(t))
	ctx := context.Background()

	in := records.Record{"cluster_id": "c3", "cluster_name": "gamma"}
	got, err := s.PutSnapshot(ctx, in)
	if err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}
	if got["cluster_name"] != "gamma" {
		t.Errorf("PutSnapshot() = %v", got)
	}

	list, err := s.ListClusters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 4 || list[3].ClusterID != "c3" {
		t.Fatalf("ListClusters() = %+v", list)
	}

	// Partial update keeps untouched fields and position.
	echo, err := s.PutSnapshot(ctx, records.Record{"cluster_id": "c1", "policy": "weekly"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := echo["cluster_name"]; ok {
		t.Errorf("PutSnapshot() echoed merged record %v, want submitted record", echo)
	}

	snaps, err := s.GetSnapshots(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Fatalf("len = %d, want 1", len(snaps))
	}
	if snaps[0]["policy"] != "weekly" || snaps[0]["cluster_name"] != "alpha" {
		t.Errorf("merged record = %v", snaps[0])
	}

	list, _ = s.ListClusters(ctx)
	if len(list) != 4 || list[0].ClusterID != "c1" {
		t.Errorf("merge changed order or count: %+v", list)
	}
}

func TestPutSnapshot_Idempotent(t *testing.T) {
	m := seededBackend(t)
	s := newTestStore(t, m)
	ctx := context.Background()

	rec := records.Record{"cluster_id": "c9", "retention": json.Number("7")}
	if _, err := s.PutSnapshot(ctx, rec); err != nil {
		t.Fatal(err)
	}
	first, _ := m.Read(ctx, DefaultSnapshotName)
	if _, err := s.PutSnapshot(ctx, rec); err != nil {
		t.Fatal(err)
	}
	second, _ := m.Read(ctx, DefaultSnapshotName)

	if string(first) != string(second) {
		t.Errorf("second identical upsert changed the document:\n%s\n%s", first, second)
	}
}

func TestPutSnapshot_MissingDocument(t *testing.T) {
	s := newTestStore(t, storage.NewMemoryBackend())

	_, err := s.PutSnapshot(context.Background(), records.Record{"cluster_id": "c1"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("PutSnapshot() error = %v, want ErrNotFound", err)
	}
	if Outcome(err) != "not_found" {
		t.Errorf("Outcome() = %q", Outcome(err))
	}
}

func TestLoad_MalformedDocuments(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"invalid json", `{"snapshots": [`, records.ErrParse},
		{"not an array", `{"snapshots": {}}`, records.ErrSchema},
		{"missing key", `{"other": []}`, records.ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := storage.NewMemoryBackend()
			_ = m.Write(context.Background(), DefaultSnapshotName, []byte(tt.data))
			s := newTestStore(t, m)

			_, err := s.ListClusters(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ListClusters() error = %v, want %v", err, tt.wantErr)
			}
			if Outcome(err) != "malformed" {
				t.Errorf("Outcome() = %q, want malformed", Outcome(err))
			}
		})
	}
}

type failingWrites struct {
	*storage.MemoryBackend
}

func (f failingWrites) Write(ctx context.Context, name string, data []byte) error {
	return errors.New("disk full")
}

func TestPutSnapshot_WriteFailureKeepsPrevious(t *testing.T) {
	m := seededBackend(t)
	s := newTestStore(t, failingWrites{m})
	ctx := context.Background()

	_, err := s.PutSnapshot(ctx, records.Record{"cluster_id": "c7"})
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("PutSnapshot() error = %v, want ErrWriteFailure", err)
	}

	data, err := m.Read(ctx, DefaultSnapshotName)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != snapshotFixture {
		t.Error("previous document was modified by a failed write")
	}
}

func TestPutSnapshot_ConcurrentDistinctIDs(t *testing.T) {
	m := seededBackend(t)
	s := newTestStore(t, m)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.PutSnapshot(ctx, records.Record{"cluster_id": fmt.Sprintf("new-%d", i)}); err != nil {
				t.Errorf("PutSnapshot(%d) error = %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	list, err := s.ListClusters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3+n {
		t.Errorf("len = %d, want %d (lost updates)", len(list), 3+n)
	}
}

func TestPutSnapshot_ConcurrentSameID(t *testing.T) {
	s := newTestStore(t, seededBackend(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, field := range []string{"a", "b"} {
		wg.Add(1)
		go func(field string) {
			defer wg.Done()
			if _, err := s.PutSnapshot(ctx, records.Record{"cluster_id": "c1", field: true}); err != nil {
				t.Errorf("PutSnapshot(%s) error = %v", field, err)
			}
		}(field)
	}
	wg.Wait()

	snaps, err := s.GetSnapshots(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Fatalf("len = %d, want 1", len(snaps))
	}
	if snaps[0]["a"] != true || snaps[0]["b"] != true {
		t.Errorf("record = %v, want both fields from serialized merges", snaps[0])
	}
}

func TestPutSnapshot_LockContextCanceled(t *testing.T) {
	locker := storage.NewLocalLocker()
	m := seededBackend(t)
	s := New(m, Options{
		Locker: locker,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	unlock, err := locker.Lock(context.Background(), DefaultSnapshotName)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.PutSnapshot(ctx, records.Record{"cluster_id": "c1"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("PutSnapshot() error = %v, want DeadlineExceeded", err)
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	ops     []string
	records map[string]int
	waits   int
}

func (r *recordingObserver) ObserveOperation(store, op string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, store+"/"+op+"/"+Outcome(err))
}

func (r *recordingObserver) ObserveLockWait(string, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits++
}

func (r *recordingObserver) SetRecords(store string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[store] = n
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{records: map[string]int{}}
	s := New(seededBackend(t), Options{
		Observer: obs,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ctx := context.Background()

	_, _ = s.ListClusters(ctx)
	_, _ = s.GetSnapshots(ctx, "")
	_, _ = s.PutSnapshot(ctx, records.Record{"cluster_id": "c5"})
	_, _ = s.GetTimeSeries(ctx, "c1", "IOPS")

	want := []string{
		"snapshot/list_clusters/ok",
		"snapshot/get_snapshots/invalid",
		"snapshot/put_snapshot/ok",
		"timeseries/get_timeseries/ok",
	}
	if len(obs.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", obs.ops, want)
	}
	for i := range want {
		if obs.ops[i] != want[i] {
			t.Errorf("ops[%d] = %q, want %q", i, obs.ops[i], want[i])
		}
	}
	if obs.waits != 1 {
		t.Errorf("lock waits = %d, want 1", obs.waits)
	}
	if obs.records[StoreSnapshot] != 4 || obs.records[StoreTimeSeries] != 3 {
		t.Errorf("records = %v", obs.records)
	}
}
