package allocator

import (
	"context"
	"errors"
	"strings"

	"adslots/internal/domain/advertisements"
	"adslots/internal/domain/slotbookings"
	"adslots/internal/domain/storage"
)

func (s *Service) upsertAdvertisement(ctx context.Context, tx *storage.Tx, ownerID int64, displayName string, content advertisements.Content) (*advertisements.Advertisement, error) {
	current, err := tx.Advertisements.GetByOwner(ctx, ownerID)
	if err != nil && !errors.Is(err, advertisements.ErrNotFound) {
		return nil, err
	}
	status := advertisements.NextStatus(current, content)

	if current == nil {
		ad := &advertisements.Advertisement{
			OwnerID:          ownerID,
			OwnerDisplayName: displayName,
			Content:          content,
			Status:           status,
		}
		if err := tx.Advertisements.Create(ctx, ad); err != nil {
			if errors.Is(err, advertisements.ErrOwnerExists) {
				return nil, conflictError(CodeConcurrentSubmission, "another submission for this owner is in progress")
			}
			return nil, err
		}
		return ad, nil
	}

	if displayName != "" {
		current.OwnerDisplayName = displayName
	}
	current.Content = content
	current.Status = status
	current.RejectionReason = nil
	if err := tx.Advertisements.UpdateContent(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

type ModerationResult struct {
	Advertisement *advertisements.Advertisement `json:"advertisement"`
	Activated     *slotbookings.Booking         `json:"activated_booking,omitempty"`
	Canceled      []slotbookings.Booking        `json:"canceled_bookings,omitempty"`
}

// Moderate sets an advertisement's review status and applies its effect on
// bookings in the same transaction: approval activates the booking that was
// waiting for it, rejection frees every slot the advertisement holds.
func (s *Service) Moderate(ctx context.Context, adID int64, status advertisements.Status, reason string) (*ModerationResult, error) {
	reason = strings.TrimSpace(reason)
	if !status.Valid() {
		return nil, validationError(CodeInvalidStatus, "status must be one of PENDING_REVIEW, APPROVED, REJECTED")
	}
	if status == advertisements.StatusRejected && reason == "" {
		return nil, validationError(CodeReasonRequired, "a rejection needs a reason")
	}

	res := &ModerationResult{}
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		ad, err := s.getAdvertisement(ctx, tx, adID)
		if err != nil {
			return err
		}

		var r *string
		if status == advertisements.StatusRejected {
			r = &reason
		}
		if err := tx.Advertisements.SetStatus(ctx, adID, status, r); err != nil {
			return err
		}
		ad.Status = status
		ad.RejectionReason = r
		res.Advertisement = ad

		switch status {
		case advertisements.StatusApproved:
			res.Activated, err = s.approveTx(ctx, tx, adID)
		case advertisements.StatusRejected:
			res.Canceled, err = s.cancelLiveTx(ctx, tx, adID, slotbookings.ReasonAdRejected)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateProjection(ctx)
	s.logger.Infow("advertisement moderated", "advertisement_id", adID, "status", status)
	if res.Activated != nil {
		s.onActivated(ctx, *res.Activated)
	}
	s.onCanceled(ctx, res.Canceled, slotbookings.ReasonAdRejected)
	if status == advertisements.StatusRejected && s.notifier != nil {
		s.notifier.AdvertisementRejected(ctx, *res.Advertisement)
	}
	return res, nil
}

type DeletionResult struct {
	Advertisement *advertisements.Advertisement `json:"advertisement"`
	Canceled      []slotbookings.Booking        `json:"canceled_bookings"`
}

// DeleteAdvertisement cancels the advertisement's live bookings and removes
// it.
func (s *Service) DeleteAdvertisement(ctx context.Context, adID int64) (*DeletionResult, error) {
	res := &DeletionResult{}
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		if res.Advertisement, err = s.getAdvertisement(ctx, tx, adID); err != nil {
			return err
		}
		if res.Canceled, err = s.cancelLiveTx(ctx, tx, adID, slotbookings.ReasonAdDeleted); err != nil {
			return err
		}
		return tx.Advertisements.Delete(ctx, adID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateProjection(ctx)
	s.logger.Infow("advertisement deleted", "advertisement_id", adID, "canceled", len(res.Canceled))
	s.onCanceled(ctx, res.Canceled, slotbookings.ReasonAdDeleted)
	return res, nil
}

func (s *Service) OwnAdvertisement(ctx context.Context, ownerID int64) (*advertisements.Advertisement, error) {
	var ad *advertisements.Advertisement
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		ad, err = tx.Advertisements.GetByOwner(ctx, ownerID)
		if errors.Is(err, advertisements.ErrNotFound) {
			return notFoundError(CodeAdvertisementNotFound, "no advertisement submitted yet")
		}
		return err
	})
	return ad, err
}

func (s *Service) ListAdvertisements(ctx context.Context, filter advertisements.ListFilter) ([]advertisements.Advertisement, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, validationError(CodeInvalidStatus, "unknown status %q", filter.Status)
	}

	var (
		ads   []advertisements.Advertisement
		total int
	)
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		ads, total, err = tx.Advertisements.List(ctx, filter)
		return err
	})
	return ads, total, err
}
