package repository

import (
	"context"
	"database/sql"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
)

// ReferenceRepository reads the campus and card tables owned by the CRUD
// layer. The upserts exist for seeding.
type ReferenceRepository struct{}

func (r *ReferenceRepository) GetCampus(ctx context.Context, q Queryer, id int64) (*models.Campus, error) {
	campus := &models.Campus{}
	err := q.QueryRowContext(ctx, `SELECT id, name FROM campuses WHERE id = $1`, id).
		Scan(&campus.ID, &campus.Name)
	if err == sql.ErrNoRows {
		return nil, models.ErrCampusNotFound
	}
	if err != nil {
		return nil, err
	}
	return campus, nil
}

func (r *ReferenceRepository) GetCard(ctx context.Context, q Queryer, id int64) (*models.Card, error) {
	card := &models.Card{}
	err := q.QueryRowContext(ctx,
		`SELECT id, campus_id, name, channel_hint, sat FROM cards WHERE id = $1`, id).
		Scan(&card.ID, &card.CampusID, &card.Name, &card.ChannelHint, &card.SAT)
	if err == sql.ErrNoRows {
		return nil, models.ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}
	return card, nil
}

func (r *ReferenceRepository) UpsertCampus(ctx context.Context, q Queryer, campus *models.Campus) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO campuses (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name
	`, campus.ID, campus.Name)
	return err
}

func (r *ReferenceRepository) UpsertCard(ctx context.Context, q Queryer, card *models.Card) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO cards (id, campus_id, name, channel_hint, sat) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET campus_id = excluded.campus_id, name = excluded.name,
			channel_hint = excluded.channel_hint, sat = excluded.sat
	`, card.ID, card.CampusID, card.Name, string(card.ChannelHint), card.SAT)
	return err
}
