package records

import (
	"encoding/json"
	"maps"
)

// ValidateSnapshot checks the one constraint placed on snapshot records:
// cluster_id must be present, a string or a number, and non-empty.
func ValidateSnapshot(rec Record) error {
	v, ok := rec[FieldClusterID]
	if !ok || v == nil {
		return &ValidationError{Message: "cluster_id is required in payload"}
	}
	switch v.(type) {
	case string, json.Number, float64, float32, int, int32, int64, uint64:
	default:
		return &ValidationError{Message: "cluster_id must be a string or number"}
	}
	if NormalizeID(v) == "" {
		return &ValidationError{Message: "cluster_id is required in payload"}
	}
	return nil
}

// Upsert inserts incoming into doc, or merges it into the first record with
// the same cluster_id.
//
// A merge is shallow: every field of incoming overwrites the stored field,
// stored fields absent from incoming are kept, and the merged record stays at
// its original position. Without a match, incoming is appended.
//
// The returned record is incoming exactly as submitted, not the merged result,
// so callers echoing it cannot tell an update from an insert.
func Upsert(doc *SnapshotDocument, incoming Record) (Record, error) {
	if err := ValidateSnapshot(incoming); err != nil {
		return nil, err
	}

	id := incoming.ClusterID()
	for i, existing := range doc.Snapshots {
		if !existing.hasClusterID(id) {
			continue
		}
		merged := make(Record, len(existing)+len(incoming))
		maps.Copy(merged, existing)
		maps.Copy(merged, incoming)
		doc.Snapshots[i] = merged
		return incoming, nil
	}

	doc.Snapshots = append(doc.Snapshots, maps.Clone(incoming))
	return incoming, nil
}
