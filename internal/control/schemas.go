package control

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrSchemaNotFound is returned when no schema exists for a source.
var ErrSchemaNotFound = errors.New("control: schema not found")

// LogSchema is an operator-curated parsing schema for one log source.
// Detection of schemas happens outside this service; the registry only
// stores and serves them.
type LogSchema struct {
	ID         int64  `json:"id"`
	SourceName string `json:"source_name"`
	SchemaJSON string `json:"schema_json"`
}

// SaveSchema inserts or replaces the schema for a source.
func (r *Registry) SaveSchema(sourceName, schemaJSON string) (LogSchema, error) {
	res, err := r.db.Exec(
		`INSERT INTO schemas (source_name, schema_json) VALUES (?, ?)
		 ON CONFLICT(source_name) DO UPDATE SET schema_json = excluded.schema_json`,
		sourceName, schemaJSON)
	if err != nil {
		return LogSchema{}, fmt.Errorf("save schema for %s: %w", sourceName, err)
	}
	id, _ := res.LastInsertId()
	if id == 0 {
		// Updated an existing row; read back the id.
		row := r.db.QueryRow(`SELECT id FROM schemas WHERE source_name = ?`, sourceName)
		if err := row.Scan(&id); err != nil {
			return LogSchema{}, fmt.Errorf("read back schema id for %s: %w", sourceName, err)
		}
	}
	return LogSchema{ID: id, SourceName: sourceName, SchemaJSON: schemaJSON}, nil
}

// GetSchema returns the schema for a source.
func (r *Registry) GetSchema(sourceName string) (LogSchema, error) {
	var s LogSchema
	row := r.db.QueryRow(
		`SELECT id, source_name, schema_json FROM schemas WHERE source_name = ?`, sourceName)
	if err := row.Scan(&s.ID, &s.SourceName, &s.SchemaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LogSchema{}, ErrSchemaNotFound
		}
		return LogSchema{}, fmt.Errorf("get schema for %s: %w", sourceName, err)
	}
	return s, nil
}

// ListSchemas returns every stored schema.
func (r *Registry) ListSchemas() ([]LogSchema, error) {
	rows, err := r.db.Query(`SELECT id, source_name, schema_json FROM schemas ORDER BY source_name`)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	var out []LogSchema
	for rows.Next() {
		var s LogSchema
		if err := rows.Scan(&s.ID, &s.SourceName, &s.SchemaJSON); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema rows: %w", err)
	}
	return out, nil
}
