package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/nonibytes/shelfdex/shelfdex"
	"github.com/nonibytes/shelfdex/shelfdex/storage/sqlbuilder"
)

// Source mirrors a sqlite library database. It only ever reads; the
// write path belongs to whatever owns the database.
type Source struct {
	Path       string
	DriverName string
	db         *sql.DB
}

func New(path string) *Source {
	return &Source{Path: path, DriverName: "sqlite"}
}

// NewWithDriver selects an alternate registered sqlite driver.
func NewWithDriver(path, driver string) *Source {
	return &Source{Path: path, DriverName: driver}
}

func (s *Source) Connect(ctx context.Context) error {
	dsn := s.Path
	if !strings.Contains(dsn, "?") {
		dsn = dsn + "?_busy_timeout=5000&_foreign_keys=on"
	} else {
		dsn = dsn + "&_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sql.Open(s.DriverName, dsn)
	if err != nil {
		return err
	}
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

// selectList returns the scanned fields in registry order and the
// matching SELECT column list. sqlite's dynamic typing lets every
// column scan as text.
func selectList(reg *shelfdex.Registry) ([]*shelfdex.Field, string) {
	var fields []*shelfdex.Field
	var cols []string
	for _, f := range reg.Columns() {
		if f.Key == "id" || !shelfdex.HasColumn(f) {
			continue
		}
		fields = append(fields, f)
		cols = append(cols, shelfdex.ColumnName(f))
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
	b := sqlbuilder.New(sqlbuilder.PlaceholderQuestion)
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
