package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/nonibytes/shelfdex/shelfdex"
	"github.com/nonibytes/shelfdex/shelfdex/storage/sqlbuilder"
)

// Source mirrors a postgres library database, read-only, through the
// pgx stdlib bridge. The library lives in a dedicated schema reached
// via search_path.
type Source struct {
	DSN    string
	Schema string
	db     *sql.DB
}

func New(dsn, schema string) *Source {
	return &Source{DSN: dsn, Schema: schema}
}

var schemaNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (s *Source) Connect(ctx context.Context) error {
	if s.Schema != "" && !schemaNameRe.MatchString(s.Schema) {
		return fmt.Errorf("invalid postgres schema name %q (must match %s)", s.Schema, schemaNameRe.String())
	}
	cfg, err := pgx.ParseConfig(s.DSN)
	if err != nil {
		return err
	}
	if s.Schema != "" {
		if cfg.RuntimeParams == nil {
			cfg.RuntimeParams = map[string]string{}
		}
		cfg.RuntimeParams["search_path"] = s.Schema
	}
	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}
	s.db = db
	return nil
}

func (s *Source) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// selectList casts every column to text so both SQL backends feed the
// same coercion path.
func selectList(reg *shelfdex.Registry) ([]*shelfdex.Field, string) {
	var fields []*shelfdex.Field
	var cols []string
	for _, f := range reg.Columns() {
		if f.Key == "id" || !shelfdex.HasColumn(f) {
			continue
		}
		fields = append(fields, f)
		cols = append(cols, shelfdex.ColumnName(f)+"::text")
	}
	return fields, strings.Join(cols, ", ")
}

func scanRows(rows *sql.Rows, reg *shelfdex.Registry, fields []*shelfdex.Field) ([]shelfdex.RawRow, error) {
	var out []shelfdex.RawRow
	for rows.Next() {
		var id int64
		raw := make([]sql.NullString, len(fields))
		dest := make([]any, 0, len(fields)+1)
		dest = append(dest, &id)
		for i := range raw {
			dest = append(dest, &raw[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		cells := make([]shelfdex.Value, reg.NumColumns())
		cells[0] = shelfdex.IntVal(id)
		for i, f := range fields {
			cells[f.RecIndex] = shelfdex.CellFromText(f, raw[i].String, raw[i].Valid)
		}
		shelfdex.FinishRow(reg, cells)
		out = append(out, shelfdex.RawRow{ID: id, Cells: cells})
	}
	return out, rows.Err()
}

func (s *Source) LoadAll(ctx context.Context, reg *shelfdex.Registry) ([]shelfdex.RawRow, error) {
	fields, cols := selectList(reg)
	rows, err := s.db.QueryContext(ctx, "SELECT id, "+cols+" FROM books ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows, reg, fields)
}

func (s *Source) ReadRows(ctx context.Context, reg *shelfdex.Registry, ids []int64) ([]shelfdex.RawRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	fields, cols := selectList(reg)
	b := sqlbuilder.New(sqlbuilder.PlaceholderDollar)
	where := b.In("id", ids)
	rows, err := s.db.QueryContext(ctx, "SELECT id, "+cols+" FROM books WHERE "+where+" ORDER BY id", b.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows, reg, fields)
}

func (s *Source) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books").Scan(&n)
	return n, err
}

func (s *Source) UserCategories(ctx context.Context) (map[string][]shelfdex.UserCategoryItem, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, value, field FROM user_categories ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]shelfdex.UserCategoryItem)
	for rows.Next() {
		var name, value, field string
		if err := rows.Scan(&name, &value, &field); err != nil {
			return nil, err
		}
		out[name] = append(out[name], shelfdex.UserCategoryItem{Value: value, Field: field})
	}
	return out, rows.Err()
}

func (s *Source) SavedSearches(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, query FROM saved_searches ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, q string
		if err := rows.Scan(&name, &q); err != nil {
			return nil, err
		}
		out[name] = q
	}
	return out, rows.Err()
}

var _ shelfdex.Source = (*Source)(nil)
