package activity

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/restaurant-pos/internal/db"
)

type PostgresSink struct {
	db db.Querier
}

func NewPostgresSink(q db.Querier) *PostgresSink {
	return &PostgresSink{db: q}
}

func (s *PostgresSink) Write(ctx context.Context, e Entry) error {
	var actor *uuid.UUID
	if e.ActorID != uuid.Nil {
		actor = &e.ActorID
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO activity_log (actor_id, action, entity_type, entity_id, before, after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		actor, e.Action, e.EntityType, e.EntityID, e.Before, e.After, e.At,
	)
	if err != nil {
		return fmt.Errorf("activity: failed to insert entry: %w", err)
	}
	return nil
}
