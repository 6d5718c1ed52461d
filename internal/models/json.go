package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONMap is an opaque, string-keyed bag used for per-row settings and
// message metadata. It is untyped at the storage layer; callers that need
// structure (e.g. the message-type-specific metadata shapes) decode the
// relevant keys themselves.
type JSONMap map[string]interface{}

// Value implements driver.Valuer for direct pgx/sql usage.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = JSONMap{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("models: JSONMap.Scan: unsupported source type")
	}
	if len(raw) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(raw, m)
}
