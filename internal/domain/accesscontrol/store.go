package accesscontrol

import (
	"context"
	"fmt"
	"time"

	"adslots/internal/infra/dbx"
)

const QueryTimeoutDuration = time.Second * 5

type Store interface {
	UserHasRole(ctx context.Context, userID int64, roleName string) (bool, error)
}

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) Store {
	return &Repository{q: q}
}

func (r *Repository) UserHasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM user_roles ur
			JOIN roles r ON ur.role_id = r.id
			WHERE ur.user_id = $1 AND r.name = $2
		)
	`, userID, roleName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check role %q: %w", roleName, err)
	}
	return exists, nil
}
