package advertisements

import (
	"context"
	"errors"
	"fmt"

	"adslots/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Store interface {
	GetByID(ctx context.Context, id int64) (*Advertisement, error)
	GetByOwner(ctx context.Context, ownerID int64) (*Advertisement, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*Advertisement, error)
	Create(ctx context.Context, ad *Advertisement) error
	UpdateContent(ctx context.Context, ad *Advertisement) error
	SetStatus(ctx context.Context, id int64, status Status, reason *string) error
	List(ctx context.Context, filter ListFilter) ([]Advertisement, int, error)
	Delete(ctx context.Context, id int64) error
}

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) Store {
	return &Repository{q: q}
}

const selectColumns = `
	SELECT id, owner_id, owner_display_name, server_name, server_address, server_version,
	       description, links, banner_url, status, rejection_reason, created_at, updated_at
	FROM advertisements`

func scanAdvertisement(row pgx.Row) (*Advertisement, error) {
	var ad Advertisement
	err := row.Scan(
		&ad.ID, &ad.OwnerID, &ad.OwnerDisplayName,
		&ad.Content.ServerName, &ad.Content.ServerAddress, &ad.Content.ServerVersion,
		&ad.Content.Description, &ad.Content.Links, &ad.Content.BannerURL,
		&ad.Status, &ad.RejectionReason, &ad.CreatedAt, &ad.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ad, nil
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (*Advertisement, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	ad, err := scanAdvertisement(r.q.QueryRow(ctx, selectColumns+" WHERE "+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get advertisement: %w", err)
	}
	return ad, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Advertisement, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *Repository) GetByOwner(ctx context.Context, ownerID int64) (*Advertisement, error) {
	return r.getOne(ctx, "owner_id = $1", ownerID)
}

func (r *Repository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*Advertisement, error) {
	out := make(map[int64]*Advertisement, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.q.Query(ctx, selectColumns+" WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("query advertisements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ad, err := scanAdvertisement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan advertisement: %w", err)
		}
		out[ad.ID] = ad
	}
	return out, rows.Err()
}

func (r *Repository) Create(ctx context.Context, ad *Advertisement) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := r.q.QueryRow(ctx, `
		INSERT INTO advertisements
			(owner_id, owner_display_name, server_name, server_address, server_version,
			 description, links, banner_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`,
		ad.OwnerID, ad.OwnerDisplayName, ad.Content.ServerName, ad.Content.ServerAddress,
		ad.Content.ServerVersion, ad.Content.Description, linksOrEmpty(ad.Content.Links),
		ad.Content.BannerURL, ad.Status,
	).Scan(&ad.ID, &ad.CreatedAt, &ad.UpdatedAt)
	if err != nil {
		if dbx.UniqueViolation(err, "advertisements_owner_id_key") {
			return ErrOwnerExists
		}
		return fmt.Errorf("insert advertisement: %w", err)
	}
	return nil
}

// UpdateContent stores new owner content and status; a resubmission always
// clears any previous rejection reason.
func (r *Repository) UpdateContent(ctx context.Context, ad *Advertisement) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := r.q.QueryRow(ctx, `
		UPDATE advertisements
		SET owner_display_name = $2, server_name = $3, server_address = $4, server_version = $5,
		    description = $6, links = $7, banner_url = $8, status = $9,
		    rejection_reason = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		ad.ID, ad.OwnerDisplayName, ad.Content.ServerName, ad.Content.ServerAddress,
		ad.Content.ServerVersion, ad.Content.Description, linksOrEmpty(ad.Content.Links),
		ad.Content.BannerURL, ad.Status,
	).Scan(&ad.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update advertisement: %w", err)
	}
	ad.RejectionReason = nil
	return nil
}

func (r *Repository) SetStatus(ctx context.Context, id int64, status Status, reason *string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE advertisements
		SET status = $2, rejection_reason = $3, updated_at = NOW()
		WHERE id = $1
	`, id, status, reason)
	if err != nil {
		return fmt.Errorf("set advertisement status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Advertisement, int, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var total int
	if err := r.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM advertisements WHERE ($1 = '' OR status = $1)
	`, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count advertisements: %w", err)
	}

	rows, err := r.q.Query(ctx, selectColumns+`
		WHERE ($1 = '' OR status = $1)
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query advertisements: %w", err)
	}
	defer rows.Close()

	var ads []Advertisement
	for rows.Next() {
		ad, err := scanAdvertisement(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan advertisement: %w", err)
		}
		ads = append(ads, *ad)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating over rows: %w", err)
	}
	return ads, total, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.q.Exec(ctx, `DELETE FROM advertisements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete advertisement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func linksOrEmpty(links []string) []string {
	if links == nil {
		return []string{}
	}
	return links
}
