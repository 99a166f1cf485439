// Package records holds the cluster data model and the pure in-memory
// operations performed on it: decoding and shape validation of the two
// documents, key-equality queries, and the snapshot upsert.
//
// Nothing in this package performs I/O. Callers load a document, run a query
// or an upsert against it, and persist the result themselves.
package records

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Field names with meaning to the service. Every other snapshot field is opaque.
const (
	FieldClusterID   = "cluster_id"
	FieldClusterName = "cluster_name"
)

// Record is a schema-free snapshot policy record. Values are whatever the JSON
// decoder produced, with numbers kept as json.Number so they round-trip exactly.
type Record map[string]any

// ClusterID returns the normalized cluster_id of the record, or "" if the
// field is absent or not a scalar.
func (r Record) ClusterID() string {
	return NormalizeID(r[FieldClusterID])
}

func (r Record) hasClusterID(id string) bool {
	got, ok := normalizeID(r[FieldClusterID])
	return ok && got == id
}

// ClusterSummary is the two-field projection returned by the clusters listing.
// Missing fields encode as JSON null; the record itself is never dropped.
type ClusterSummary struct {
	ClusterID   any `json:"cluster_id"`
	ClusterName any `json:"cluster_name"`
}

// NormalizeID converts an identifier to the canonical string used for every
// key comparison. Strings are kept as-is, numbers are rendered in their
// shortest decimal form (5, 5.0 and "5" all become "5"), booleans become
// "true"/"false". Anything else, including null, normalizes to "".
func NormalizeID(v any) string {
	s, _ := normalizeID(v)
	return s
}

func normalizeID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, true
	case json.Number:
		return canonicalNumber(string(id)), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(id), 'f', -1, 32), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case int32:
		return strconv.FormatInt(int64(id), 10), true
	case uint64:
		return strconv.FormatUint(id, 10), true
	case bool:
		return strconv.FormatBool(id), true
	}
	return "", false
}

func canonicalNumber(text string) string {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return text
}

// Time-series field names used for matching and the typed sample view.
const (
	FieldType = "type"
	FieldData = "data"
)

// TimeSeriesRecord is one stored series of a metric type for one cluster.
// It is kept exactly as decoded, so unknown fields and the original id
// types come back unchanged.
type TimeSeriesRecord map[string]any

// ClusterID returns the normalized cluster_id of the series.
func (r TimeSeriesRecord) ClusterID() string {
	return NormalizeID(r[FieldClusterID])
}

// Type returns the normalized metric type of the series.
func (r TimeSeriesRecord) Type() string {
	return NormalizeID(r[FieldType])
}

func (r TimeSeriesRecord) matches(clusterID, metricType string) bool {
	id, ok := normalizeID(r[FieldClusterID])
	if !ok || id != clusterID {
		return false
	}
	typ, ok := normalizeID(r[FieldType])
	return ok && typ == metricType
}

// Sample is a typed view of one timestamped read/write observation.
type Sample struct {
	Datetime string
	Read     float64
	Write    float64
}

// Samples returns the data array as typed samples. Absent values read as zero.
func (r TimeSeriesRecord) Samples() []Sample {
	raw, _ := r[FieldData].([]any)
	out := make([]Sample, 0, len(raw))
	for _, v := range raw {
		m, _ := v.(map[string]any)
		dt, _ := m["datetime"].(string)
		out = append(out, Sample{
			Datetime: dt,
			Read:     toFloat(m["read"]),
			Write:    toFloat(m["write"]),
		})
	}
	return out
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case float64:
		return n
	}
	return 0
}

// validateSeries checks the parts of a series the service relies on: scalar
// ids and a data array of samples with numeric readings.
func validateSeries(r TimeSeriesRecord) error {
	for _, field := range []string{FieldClusterID, FieldType} {
		if v, ok := r[field]; ok && v != nil {
			if _, scalar := normalizeID(v); !scalar {
				return fmt.Errorf("%s must be a string or number", field)
			}
		}
	}

	data, ok := r[FieldData]
	if !ok || data == nil {
		return nil
	}
	samples, ok := data.([]any)
	if !ok {
		return fmt.Errorf("%s is not an array", FieldData)
	}
	for i, v := range samples {
		sample, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%s[%d] is not an object", FieldData, i)
		}
		if dt, ok := sample["datetime"]; ok && dt != nil {
			if _, isString := dt.(string); !isString {
				return fmt.Errorf("%s[%d].datetime is not a string", FieldData, i)
			}
		}
		for _, field := range []string{"read", "write"} {
			if v, ok := sample[field]; ok && v != nil {
				if _, isNumber := v.(json.Number); !isNumber {
					return fmt.Errorf("%s[%d].%s is not a number", FieldData, i, field)
				}
			}
		}
	}
	return nil
}
