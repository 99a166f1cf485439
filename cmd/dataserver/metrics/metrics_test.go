package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/HatiCode/clusterdata/pkg/datastore"
	"github.com/HatiCode/clusterdata/pkg/records"
)

var _ datastore.Observer = (*Metrics)(nil)

func TestNew(t *testing.T) {
	m := New(prometheus.NewRegistry())

	if m.OperationsTotal == nil {
		t.Error("OperationsTotal should not be nil")
	}
	if m.OperationDuration == nil {
		t.Error("OperationDuration should not be nil")
	}
	if m.LockWait == nil {
		t.Error("LockWait should not be nil")
	}
	if m.Records == nil {
		t.Error("Records should not be nil")
	}
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("second New() on the same registry should panic")
		}
	}()
	New(reg)
}

func TestObserveOperation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation(datastore.StoreSnapshot, datastore.OpPutSnapshot, 5*time.Millisecond, nil)
	m.ObserveOperation(datastore.StoreSnapshot, datastore.OpPutSnapshot, time.Millisecond, &records.ValidationError{Message: "cluster_id is required in payload"})
	m.ObserveOperation(datastore.StoreSnapshot, datastore.OpPutSnapshot, time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("snapshot", "put_snapshot", "ok")); got != 1 {
		t.Errorf("ok count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("snapshot", "put_snapshot", "invalid")); got != 1 {
		t.Errorf("invalid count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("snapshot", "put_snapshot", "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}

	if count := testutil.CollectAndCount(m.OperationDuration); count != 1 {
		t.Errorf("expected 1 duration series, got %d", count)
	}
}

func TestObserveLockWait(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveLockWait(datastore.StoreSnapshot, 2*time.Millisecond)

	if count := testutil.CollectAndCount(m.LockWait); count != 1 {
		t.Errorf("expected 1 lock wait series, got %d", count)
	}
}

func TestSetRecords(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetRecords(datastore.StoreSnapshot, 12)
	m.SetRecords(datastore.StoreTimeSeries, 3)
	m.SetRecords(datastore.StoreSnapshot, 13)

	expected := `
# HELP clusterdata_store_records Number of records in the document as last loaded or written
# TYPE clusterdata_store_records gauge
clusterdata_store_records{store="snapshot"} 13
clusterdata_store_records{store="timeseries"} 3
`
	if err := testutil.CollectAndCompare(m.Records, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
}
