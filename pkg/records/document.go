package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Top-level collection keys of the two stored documents.
const (
	SnapshotsKey  = "snapshots"
	TimeSeriesKey = "time_series"
)

// SnapshotDocument is the whole snapshot store, persisted as one unit.
// Top-level keys other than "snapshots" are carried through unchanged.
type SnapshotDocument struct {
	Snapshots []Record

	extra map[string]json.RawMessage
}

// TimeSeriesDocument is the whole time-series store. It is read-only.
type TimeSeriesDocument struct {
	TimeSeries []TimeSeriesRecord
}

// DecodeSnapshotDocument parses and shape-checks a stored snapshot document.
func DecodeSnapshotDocument(data []byte) (*SnapshotDocument, error) {
	top, elems, err := decodeCollection(data, SnapshotsKey)
	if err != nil {
		return nil, err
	}

	doc := &SnapshotDocument{
		Snapshots: make([]Record, 0, len(elems)),
	}
	for i, raw := range elems {
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", ErrSchema, SnapshotsKey, i, err)
		}
		doc.Snapshots = append(doc.Snapshots, rec)
	}

	delete(top, SnapshotsKey)
	if len(top) > 0 {
		doc.extra = top
	}
	return doc, nil
}

// Encode renders the document the way it is stored: two-space indented JSON
// without HTML escaping.
func (d *SnapshotDocument) Encode() ([]byte, error) {
	out := make(map[string]any, len(d.extra)+1)
	for k, v := range d.extra {
		out[k] = v
	}
	snapshots := d.Snapshots
	if snapshots == nil {
		snapshots = []Record{}
	}
	out[SnapshotsKey] = snapshots

	return encodeIndented(out)
}

// DecodeTimeSeriesDocument parses and shape-checks a stored time-series document.
func DecodeTimeSeriesDocument(data []byte) (*TimeSeriesDocument, error) {
	_, elems, err := decodeCollection(data, TimeSeriesKey)
	if err != nil {
		return nil, err
	}

	doc := &TimeSeriesDocument{
		TimeSeries: make([]TimeSeriesRecord, 0, len(elems)),
	}
	for i, raw := range elems {
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", ErrSchema, TimeSeriesKey, i, err)
		}
		if err := validateSeries(TimeSeriesRecord(rec)); err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", ErrSchema, TimeSeriesKey, i, err)
		}
		doc.TimeSeries = append(doc.TimeSeries, TimeSeriesRecord(rec))
	}
	return doc, nil
}

// Encode renders the document the way it is stored.
func (d *TimeSeriesDocument) Encode() ([]byte, error) {
	series := d.TimeSeries
	if series == nil {
		series = []TimeSeriesRecord{}
	}
	return encodeIndented(map[string]any{TimeSeriesKey: series})
}

// decodeCollection splits a document into its top-level members and the
// elements of the collection stored under key.
func decodeCollection(data []byte, key string) (map[string]json.RawMessage, []json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, nil, fmt.Errorf("%w: top-level value is %s, want object", ErrSchema, typeErr.Value)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if top == nil {
		return nil, nil, fmt.Errorf("%w: top-level value is null, want object", ErrSchema)
	}

	raw, ok := top[key]
	if !ok {
		return nil, nil, fmt.Errorf("%w: missing %q", ErrSchema, key)
	}
	if !isArray(raw) {
		return nil, nil, fmt.Errorf("%w: %q is not an array", ErrSchema, key)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, nil, fmt.Errorf("%w: %q: %v", ErrSchema, key, err)
	}
	return top, elems, nil
}

func decodeRecord(raw json.RawMessage) (Record, error) {
	if !isObject(raw) {
		return nil, errors.New("not an object")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeRecord parses a snapshot record submitted by a caller. Anything but a
// JSON object is rejected with a *ValidationError.
func DecodeRecord(data []byte) (Record, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, &ValidationError{Message: "request body must be valid JSON"}
	}
	rec, err := decodeRecord(trimmed)
	if err != nil {
		return nil, &ValidationError{Message: "request body must be a JSON object"}
	}
	return rec, nil
}

func encodeIndented(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isObject(raw []byte) bool {
	return firstByte(raw) == '{'
}

func isArray(raw []byte) bool {
	return firstByte(raw) == '['
}

func firstByte(raw []byte) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
