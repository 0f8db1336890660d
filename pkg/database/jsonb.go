package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB maps a jsonb column onto T. NULL scans to the zero value.
type JSONB[T any] struct {
	Data T
}

func (j *JSONB[T]) Scan(src any) error {
	var zero T
	j.Data = zero

	switch raw := src.(type) {
	case nil:
		return nil
	case string:
		return json.Unmarshal([]byte(raw), &j.Data)
	case []byte:
		return json.Unmarshal(raw, &j.Data)
	default:
		return fmt.Errorf("cannot scan %T into jsonb", src)
	}
}

func (j JSONB[T]) Value() (driver.Value, error) {
	return json.Marshal(j.Data)
}

func (j *JSONB[T]) GetValue() T {
	return j.Data
}
