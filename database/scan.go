package database

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanError maps sql.ErrNoRows to helper.ErrNotFound
func scanError(trace string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return helper.NewError(trace, helper.ErrNotFound)
	}
	return helper.NewError(trace, err)
}

func filterParam(f model.MetadataFilter) (string, error) {
	b, err := f.Marshal()
	if err != nil {
		return "", helper.NewError("marshal metadata filter", err)
	}
	return string(b), nil
}

func nullableFilterParam(f model.MetadataFilter) (interface{}, error) {
	if len(f) == 0 {
		return nil, nil
	}
	return filterParam(f)
}

func uuidArray(ids []uuid.UUID) interface{} {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = id.String()
	}
	return pq.Array(s)
}

func parseUUIDs(raw pq.StringArray) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, helper.NewError("parse uuid array", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func intPtr(v sql.NullInt32) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int32)
	return &i
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func uuidPtr(v uuid.NullUUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := v.UUID
	return &id
}

func emptyToNil(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
