package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/pipekit/internal/ir"
)

// marshalArgs converts resolved task arguments to canonical JSON TEXT.
func marshalArgs(args ir.Struct) (string, error) {
	if args == nil {
		args = ir.Struct{}
	}
	data, err := ir.MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

// marshalValue converts an optional value to canonical JSON TEXT.
// A missing value is stored as SQL NULL so "no result" and an empty
// result stay distinguishable.
func marshalValue(v ir.Value) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if _, ok := v.(ir.Null); ok {
		return sql.NullString{}, nil
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal value: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// marshalDropped stores dropped keyword names as a JSON array.
func marshalDropped(names []string) (string, error) {
	list := make(ir.List, len(names))
	for i, n := range names {
		list[i] = ir.String(n)
	}
	data, err := ir.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal dropped: %w", err)
	}
	return string(data), nil
}

// unmarshalArgs parses canonical JSON TEXT to a Struct.
// Integers keep full precision via ir.Struct.UnmarshalJSON.
func unmarshalArgs(data string) (ir.Struct, error) {
	if data == "" || data == "{}" {
		return ir.Struct{}, nil
	}
	var obj ir.Struct
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	return obj, nil
}

// unmarshalValue parses a nullable JSON column. NULL yields a nil Value.
func unmarshalValue(col sql.NullString) (ir.Value, error) {
	if !col.Valid {
		return nil, nil
	}
	v, err := ir.UnmarshalValue([]byte(col.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

// unmarshalDropped parses the dropped column. An empty array yields nil.
func unmarshalDropped(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("unmarshal dropped: %w", err)
	}
	return names, nil
}
