package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"citydistance/internal/domain"
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// watermarkEpoch is returned when no sync has ever run, so the first run
// performs a full backfill.
var watermarkEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func (r *Repo) Upsert(ctx context.Context, c domain.City) error {
	_, err := r.db.ExecContext(ctx, upsertCitySQL,
		c.ID, c.Name, c.Coords.Lat, c.Coords.Lon, nullTime(c.Modified))
	return err
}

// BulkInsert writes cities with INSERT IGNORE in one multi-row statement,
// returning the number of rows actually inserted. Rows colliding on id or
// name are silently skipped.
func (r *Repo) BulkInsert(ctx context.Context, cs []domain.City) (int, error) {
	if len(cs) == 0 {
		return 0, nil
	}
	values := make([]string, 0, len(cs))
	args := make([]any, 0, len(cs)*5)
	for _, c := range cs {
		values = append(values, "(?,?,?,?,?)")
		args = append(args, c.ID, c.Name, c.Coords.Lat, c.Coords.Lon, nullTime(c.Modified))
	}
	res, err := r.db.ExecContext(ctx, bulkInsertPrefix+strings.Join(values, ","), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, deleteCitySQL, id)
	return err
}

func (r *Repo) Get(ctx context.Context, id string) (domain.City, error) {
	return scanCity(r.db.QueryRowContext(ctx, getCitySQL, id))
}

func (r *Repo) GetByName(ctx context.Context, name string) (domain.City, error) {
	return scanCity(r.db.QueryRowContext(ctx, getCityByNameSQL, strings.ToLower(name)))
}

// GetMany returns the cities that exist, silently omitting unknown ids.
func (r *Repo) GetMany(ctx context.Context, ids []string) ([]domain.City, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT city_id, city_name, lat, lon, modified_at FROM cities WHERE city_id IN ("+ph+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.City
	for rows.Next() {
		var c domain.City
		var mod sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &c.Coords.Lat, &c.Coords.Lon, &mod); err != nil {
			return nil, err
		}
		if mod.Valid {
			c.Modified = mod.Time
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) Watermark(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx, getWatermarkSQL, syncKey).Scan(&t)
	if err == sql.ErrNoRows {
		return watermarkEpoch, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func (r *Repo) SetWatermark(ctx context.Context, t time.Time) error {
	_, err := r.db.ExecContext(ctx, setWatermarkSQL, syncKey, t.UTC())
	return err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanCity(row rowScanner) (domain.City, error) {
	var c domain.City
	var mod sql.NullTime
	if err := row.Scan(&c.ID, &c.Name, &c.Coords.Lat, &c.Coords.Lon, &mod); err != nil {
		if err == sql.ErrNoRows {
			return domain.City{}, domain.ErrNotFound
		}
		return domain.City{}, err
	}
	if mod.Valid {
		c.Modified = mod.Time
	}
	return c, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
