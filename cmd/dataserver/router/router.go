// Package router configures HTTP routes for the data server.
//
// Routes configured:
//   - GET /data/clusters - id and name of every snapshot record
//   - GET /data/snapshot?cluster_id=<id> - snapshot records of one cluster
//   - PUT /data/snapshot - insert or merge one snapshot record
//   - GET /data/timeseries?cluster_id=<id>&type=<type> - time series of one cluster and metric type
//   - GET /healthz - 200 OK when the storage backend answers a ping
//   - GET /metrics - Prometheus metrics endpoint
//
// Any other method on these paths gets 405 from the mux.
package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/clusterdata/pkg/datastore"
	"github.com/HatiCode/clusterdata/pkg/httpx"
	"github.com/HatiCode/clusterdata/pkg/records"
)

// MaxBodyBytes caps the size of a PUT /data/snapshot body.
const MaxBodyBytes = 1 << 20

// Client-facing messages for server-side failures.
const (
	msgReadSnapshots    = "Failed to read snapshot data"
	msgReadTimeSeries   = "Failed to read time series data"
	msgWriteSnapshot    = "Failed to write snapshot data"
	msgBadSnapshots     = "Invalid snapshot data format"
	msgBadTimeSeries    = "Invalid time series data format"
	healthCheckDeadline = 2 * time.Second
)

// PutSnapshotResponse is the body of a successful PUT /data/snapshot.
type PutSnapshotResponse struct {
	Success  bool           `json:"success"`
	Snapshot records.Record `json:"snapshot"`
}

// SetupRoutes configures HTTP endpoints for the data server. Metrics are
// served from gatherer.
func SetupRoutes(store *datastore.Store, gatherer prometheus.Gatherer, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /data/clusters", handleListClusters(store, logger))
	mux.HandleFunc("GET /data/snapshot", handleGetSnapshots(store, logger))
	mux.HandleFunc("PUT /data/snapshot", handlePutSnapshot(store, logger))
	mux.HandleFunc("GET /data/timeseries", handleGetTimeSeries(store, logger))

	mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckDeadline)
		defer cancel()
		return store.Ping(ctx)
	}))

	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}

func handleListClusters(store *datastore.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clusters, err := store.ListClusters(r.Context())
		if err != nil {
			writeStoreError(w, logger, err, msgBadSnapshots, msgReadSnapshots)
			return
		}
		_ = httpx.WriteJSON(w, http.StatusOK, clusters)
	}
}

func handleGetSnapshots(store *datastore.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clusterID := r.URL.Query().Get("cluster_id")

		snapshots, err := store.GetSnapshots(r.Context(), clusterID)
		if err != nil {
			writeStoreError(w, logger, err, msgBadSnapshots, msgReadSnapshots)
			return
		}
		_ = httpx.WriteJSON(w, http.StatusOK, snapshots)
	}
}

func handleGetTimeSeries(store *datastore.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		series, err := store.GetTimeSeries(r.Context(), q.Get("cluster_id"), q.Get("type"))
		if err != nil {
			writeStoreError(w, logger, err, msgBadTimeSeries, msgReadTimeSeries)
			return
		}
		_ = httpx.WriteJSON(w, http.StatusOK, series)
	}
}

func handlePutSnapshot(store *datastore.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpx.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		rec, err := records.DecodeRecord(body)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}

		submitted, err := store.PutSnapshot(r.Context(), rec)
		if err != nil {
			writeStoreError(w, logger, err, msgBadSnapshots, msgWriteSnapshot)
			return
		}
		_ = httpx.WriteJSON(w, http.StatusOK, PutSnapshotResponse{Success: true, Snapshot: submitted})
	}
}

// writeStoreError maps datastore errors onto responses: validation failures
// are the caller's fault, a misshapen document gets schemaMsg alone, and
// everything else gets failMsg plus the underlying cause.
func writeStoreError(w http.ResponseWriter, logger *slog.Logger, err error, schemaMsg, failMsg string) {
	switch {
	case records.IsValidation(err):
		httpx.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, records.ErrSchema):
		logger.Error(schemaMsg, "error", err)
		httpx.WriteErrorDetails(w, http.StatusInternalServerError, schemaMsg, err)
	default:
		logger.Error(failMsg, "error", err, "outcome", datastore.Outcome(err))
		httpx.WriteErrorDetails(w, http.StatusInternalServerError, failMsg, err)
	}
}
