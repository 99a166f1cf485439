package records

// Summaries projects every snapshot record to its cluster_id and cluster_name,
// in document order.
func Summaries(doc *SnapshotDocument) []ClusterSummary {
	out := make([]ClusterSummary, 0, len(doc.Snapshots))
	for _, rec := range doc.Snapshots {
		out = append(out, ClusterSummary{
			ClusterID:   rec[FieldClusterID],
			ClusterName: rec[FieldClusterName],
		})
	}
	return out
}

// FilterByClusterID returns the records whose normalized cluster_id equals
// clusterID, in document order. The result is empty, never nil, when nothing
// matches.
func FilterByClusterID(doc *SnapshotDocument, clusterID string) []Record {
	out := []Record{}
	for _, rec := range doc.Snapshots {
		if rec.hasClusterID(clusterID) {
			out = append(out, rec)
		}
	}
	return out
}

// FilterTimeSeries returns every series whose normalized cluster_id and type
// equal clusterID and metricType, in document order. Matching series are
// returned as stored.
func FilterTimeSeries(doc *TimeSeriesDocument, clusterID, metricType string) []TimeSeriesRecord {
	out := []TimeSeriesRecord{}
	for _, ts := range doc.TimeSeries {
		if ts.matches(clusterID, metricType) {
			out = append(out, ts)
		}
	}
	return out
}

// RequireClusterID validates the parameters of a snapshot query.
func RequireClusterID(clusterID string) error {
	if clusterID == "" {
		return &ValidationError{Message: "cluster_id is required"}
	}
	return nil
}

// RequireSeriesKey validates the parameters of a time-series query.
func RequireSeriesKey(clusterID, metricType string) error {
	if clusterID == "" || metricType == "" {
		return &ValidationError{Message: "cluster_id and type are required"}
	}
	return nil
}
