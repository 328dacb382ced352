package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/hogliux/collect/internal/domain"
)

// SchemaVersion is the only settings file version this build reads.
const SchemaVersion = 1

// Document is a decoded settings file: one value map per store.
type Document struct {
	General map[string]domain.Value
	Admin   map[string]domain.Value
}

type entry struct {
	Key   string          `json:"key"`
	Type  domain.Kind     `json:"type"`
	Value json.RawMessage `json:"value"`
}

type fileFormat struct {
	Version int     `json:"version"`
	General []entry `json:"general"`
	Admin   []entry `json:"admin"`
}

// Decode parses and validates a settings file against the two registries.
// Any unknown key, unknown type, mistyped value or duplicate is an error and
// nothing is returned.
func Decode(r io.Reader, general, admin *Registry) (*Document, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var f fileFormat
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse settings file: %w", err)
	}
	if dec.More() {
		return nil, errors.New("parse settings file: trailing data after document")
	}
	if f.Version != SchemaVersion {
		return nil, fmt.Errorf("unsupported settings file version %d", f.Version)
	}

	g, err := decodeEntries(f.General, general)
	if err != nil {
		return nil, err
	}
	a, err := decodeEntries(f.Admin, admin)
	if err != nil {
		return nil, err
	}
	return &Document{General: g, Admin: a}, nil
}

func decodeEntries(entries []entry, reg *Registry) (map[string]domain.Value, error) {
	out := make(map[string]domain.Value, len(entries))
	for i, e := range entries {
		if e.Key == "" {
			return nil, fmt.Errorf("%s entry %d: missing key", reg.Scope(), i)
		}
		if _, dup := out[e.Key]; dup {
			return nil, fmt.Errorf("%s entry %d: duplicate key %q", reg.Scope(), i, e.Key)
		}
		v, err := decodeValue(e.Type, e.Value)
		if err != nil {
			return nil, fmt.Errorf("%s entry %q: %w", reg.Scope(), e.Key, err)
		}
		if err := reg.Validate(e.Key, v); err != nil {
			return nil, err
		}
		out[e.Key] = v
	}
	return out, nil
}

func decodeValue(kind domain.Kind, raw json.RawMessage) (domain.Value, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return domain.Value{}, fmt.Errorf("%w: missing value", domain.ErrInvalidPreference)
	}
	switch kind {
	case domain.KindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return domain.Value{}, fmt.Errorf("%w: want bool", domain.ErrInvalidPreference)
		}
		return domain.BoolValue(b), nil
	case domain.KindFloat:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return domain.Value{}, fmt.Errorf("%w: want float", domain.ErrInvalidPreference)
		}
		return domain.FloatValue(f), nil
	case domain.KindInt, domain.KindLong:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return domain.Value{}, fmt.Errorf("%w: want %s", domain.ErrInvalidPreference, kind)
		}
		bits := 64
		if kind == domain.KindInt {
			bits = 32
		}
		i, err := strconv.ParseInt(n.String(), 10, bits)
		if err != nil {
			return domain.Value{}, fmt.Errorf("%w: %s is not a whole %s", domain.ErrInvalidPreference, n, kind)
		}
		if kind == domain.KindInt {
			return domain.IntValue(int32(i)), nil
		}
		return domain.LongValue(i), nil
	case domain.KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return domain.Value{}, fmt.Errorf("%w: want string", domain.ErrInvalidPreference)
		}
		return domain.StringValue(s), nil
	default:
		return domain.Value{}, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidPreference, kind)
	}
}

// Encode writes doc in the versioned format with keys in sorted order.
func Encode(w io.Writer, doc *Document) error {
	g, err := encodeEntries(doc.General)
	if err != nil {
		return err
	}
	a, err := encodeEntries(doc.Admin)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fileFormat{Version: SchemaVersion, General: g, Admin: a}); err != nil {
		return fmt.Errorf("encode settings file: %w", err)
	}
	return nil
}

func encodeEntries(values map[string]domain.Value) ([]entry, error) {
	out := make([]entry, 0, len(values))
	for _, key := range sortedKeys(values) {
		v := values[key]
		if v.Kind == domain.KindFloat && (math.IsNaN(v.Float) || math.IsInf(v.Float, 0)) {
			return nil, fmt.Errorf("preference %q: %v cannot be encoded", key, v.Float)
		}
		raw, err := json.Marshal(v.Any())
		if err != nil {
			return nil, fmt.Errorf("encode preference %q: %w", key, err)
		}
		out = append(out, entry{Key: key, Type: v.Kind, Value: raw})
	}
	return out, nil
}
