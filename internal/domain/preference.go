package domain

import (
	"context"
	"fmt"
	"strconv"
)

// Kind is the declared type of a preference value.
type Kind string

const (
	KindBool   Kind = "bool"
	KindFloat  Kind = "float"
	KindInt    Kind = "int"
	KindLong   Kind = "long"
	KindString Kind = "string"
)

func (k Kind) Valid() bool {
	switch k {
	case KindBool, KindFloat, KindInt, KindLong, KindString:
		return true
	}
	return false
}

// Value is a tagged preference value. Only the field matching Kind is
// meaningful; int and long share Int.
type Value struct {
	Kind   Kind
	Bool   bool
	Float  float64
	Int    int64
	String string
}

func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func IntValue(i int32) Value     { return Value{Kind: KindInt, Int: int64(i)} }
func LongValue(i int64) Value    { return Value{Kind: KindLong, Int: i} }
func StringValue(s string) Value { return Value{Kind: KindString, String: s} }

// Text renders the value in the form accepted by ParseValue.
func (v Value) Text() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindInt, KindLong:
		return strconv.FormatInt(v.Int, 10)
	default:
		return v.String
	}
}

// Any returns the value as the natural Go type for JSON encoding.
func (v Value) Any() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindFloat:
		return v.Float
	case KindInt, KindLong:
		return v.Int
	default:
		return v.String
	}
}

// ParseValue is the inverse of Value.Text.
func ParseValue(kind Kind, text string) (Value, error) {
	switch kind {
	case KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a bool", ErrInvalidPreference, text)
		}
		return BoolValue(b), nil
	case KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a float", ErrInvalidPreference, text)
		}
		return FloatValue(f), nil
	case KindInt:
		i, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not an int", ErrInvalidPreference, text)
		}
		return IntValue(int32(i)), nil
	case KindLong:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a long", ErrInvalidPreference, text)
		}
		return LongValue(i), nil
	case KindString:
		return StringValue(text), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown type %q", ErrInvalidPreference, kind)
	}
}

// Scope names one of the two preference stores.
type Scope string

const (
	ScopeGeneral Scope = "general"
	ScopeAdmin   Scope = "admin"
)

// PreferenceStore is a flat key/value store of typed preferences.
// Replace clears the store and repopulates it from values.
type PreferenceStore interface {
	Get(ctx context.Context, key string) (Value, bool, error)
	All(ctx context.Context) (map[string]Value, error)
	Set(ctx context.Context, key string, v Value) error
	Replace(ctx context.Context, values map[string]Value) error
	Clear(ctx context.Context) error
}
