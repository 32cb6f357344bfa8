// README: Station store backed by PostgreSQL.
package station

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stationq/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) List(ctx context.Context) ([]Station, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, lat, lng, radius_m
		FROM stations
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Station
	for rows.Next() {
		var st Station
		var id string
		if err := rows.Scan(&id, &st.Name, &st.Location.Lat, &st.Location.Lng, &st.RadiusMeters); err != nil {
			return nil, err
		}
		st.ID = types.ID(id)
		out = append(out, st)
	}
	return out, rows.Err()
}

// Upsert writes every station in one transaction.
func (s *Store) Upsert(ctx context.Context, stations []Station) error {
	for _, st := range stations {
		if err := st.Validate(); err != nil {
			return err
		}
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, st := range stations {
			_, err := tx.Exec(ctx, `
				INSERT INTO stations (id, name, lat, lng, radius_m)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE
				SET name = EXCLUDED.name,
				    lat = EXCLUDED.lat,
				    lng = EXCLUDED.lng,
				    radius_m = EXCLUDED.radius_m`,
				string(st.ID), st.Name, st.Location.Lat, st.Location.Lng, st.RadiusMeters,
			)
			if err != nil {
				return fmt.Errorf("upserting station %s: %w", st.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM stations WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
