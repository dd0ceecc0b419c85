package allocator

import (
	"context"
	"errors"
	"strings"
	"time"

	"adslots/internal/domain/advertisements"
	"adslots/internal/domain/paymentlogs"
	"adslots/internal/domain/pricing"
	"adslots/internal/domain/slotbookings"
	"adslots/internal/domain/storage"
	"adslots/internal/payments"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	VIPSlot = 1

	TierPaid = "PAID"
	TierFree = "FREE"

	DefaultHoldWindow    = 30 * time.Minute
	DefaultProjectionTTL = 30 * time.Second
	DefaultCurrency      = "NPR"
)

// Layout splits slots 1..TotalSlots into a paid tier (1..PaidSlots) and a
// free tier above it. Slot 1 is the VIP slot.
type Layout struct {
	TotalSlots int
	PaidSlots  int
}

func (l Layout) Valid(slot int) bool { return slot >= 1 && slot <= l.TotalSlots }

func (l Layout) Paid(slot int) bool { return slot >= 1 && slot <= l.PaidSlots }

func (l Layout) Tier(slot int) string {
	if l.Paid(slot) {
		return TierPaid
	}
	return TierFree
}

type Config struct {
	Layout            Layout
	HoldWindow        time.Duration
	DefaultDailyPrice decimal.Decimal
	Currency          string
	ProjectionTTL     time.Duration
}

// Store runs fn as one atomic unit of work.
type Store interface {
	WithTx(ctx context.Context, fn func(tx *storage.Tx) error) error
}

type Gateways interface {
	Supports(p payments.Provider) bool
	CreatePayableOrder(ctx context.Context, p payments.Provider, order payments.Order) (payments.PayableOrder, error)
	ConfirmOrder(ctx context.Context, p payments.Provider, c payments.Confirmation) (payments.Verification, error)
	// ResumeOrder rebuilds the redirect for an order that is still open, when
	// the provider allows paying the same order again.
	ResumeOrder(p payments.Provider, externalID string, order payments.Order) (payments.PayableOrder, bool)
}

type ReferenceEncoder interface {
	Encode(bookingID int64) (string, error)
}

// Notifier is told about transitions after they commit. Implementations must
// not block for long.
type Notifier interface {
	BookingActivated(ctx context.Context, b slotbookings.Booking)
	BookingCanceled(ctx context.Context, b slotbookings.Booking)
	AdvertisementRejected(ctx context.Context, ad advertisements.Advertisement)
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Deps struct {
	Store      Store
	Gateways   Gateways
	References ReferenceEncoder
	Logger     *zap.SugaredLogger
	Metrics    *Metrics
	Cache      Cache
	Notifier   Notifier
	Now        func() time.Time
}

// Service is the booking allocator: it owns slot exclusivity, the booking
// state machine and its reconciliation with payments and moderation.
type Service struct {
	cfg      Config
	store    Store
	gateways Gateways
	refs     ReferenceEncoder
	logger   *zap.SugaredLogger
	metrics  *Metrics
	cache    Cache
	notifier Notifier
	now      func() time.Time
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.HoldWindow <= 0 {
		cfg.HoldWindow = DefaultHoldWindow
	}
	if cfg.ProjectionTTL <= 0 {
		cfg.ProjectionTTL = DefaultProjectionTTL
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		gateways: deps.Gateways,
		refs:     deps.References,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		cache:    deps.Cache,
		notifier: deps.Notifier,
		now:      deps.Now,
	}
}

func (s *Service) Layout() Layout { return s.cfg.Layout }

type SweepResult struct {
	Expired  int64 `json:"expired"`
	Canceled int64 `json:"canceled"`
	// Holds are the unpaid bookings the sweep released.
	Holds []slotbookings.Booking `json:"-"`
}

// Sweep expires finished bookings and cancels unpaid holds older than the
// hold window. Running it twice in a row changes nothing the second time.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		res, err = s.sweep(ctx, tx)
		return err
	})
	if err != nil {
		return SweepResult{}, err
	}
	s.afterSweep(ctx, res)
	return res, nil
}

func (s *Service) sweep(ctx context.Context, tx *storage.Tx) (SweepResult, error) {
	now := s.now()
	expired, err := tx.Bookings.ExpireEnded(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}
	holds, err := tx.Bookings.CancelStaleHolds(ctx, now.Add(-s.cfg.HoldWindow))
	if err != nil {
		return SweepResult{}, err
	}
	return SweepResult{Expired: expired, Canceled: int64(len(holds)), Holds: holds}, nil
}

func (s *Service) afterSweep(ctx context.Context, r SweepResult) {
	if r.Expired == 0 && r.Canceled == 0 {
		return
	}
	s.metrics.expired(r.Expired)
	if r.Expired > 0 {
		s.invalidateProjection(ctx)
	}
	s.logger.Infow("slot sweep", "expired", r.Expired, "canceled", r.Canceled)
	s.onCanceled(ctx, r.Holds, slotbookings.ReasonHoldExpired)
}

type CreateRequest struct {
	OwnerID          int64
	OwnerDisplayName string
	Slot             int
	DurationKind     slotbookings.DurationKind
	Days             int
	Provider         slotbookings.Provider
	Content          advertisements.Content
	Customer         payments.Customer
}

type CreateResult struct {
	Booking       *slotbookings.Booking         `json:"booking"`
	Advertisement *advertisements.Advertisement `json:"advertisement"`
	Payment       *payments.PayableOrder        `json:"payment,omitempty"`
}

func (s *Service) validateCreate(req *CreateRequest) error {
	layout := s.cfg.Layout
	if !layout.Valid(req.Slot) {
		return validationError(CodeInvalidSlot, "slot must be between 1 and %d", layout.TotalSlots)
	}
	if !req.DurationKind.Valid() {
		return validationError(CodeInvalidDuration, "duration kind must be CUSTOM or MONTHLY")
	}
	if req.DurationKind == slotbookings.DurationCustom && (req.Days < pricing.MinDays || req.Days > pricing.MaxDays) {
		return validationError(CodeInvalidDays, "days must be between %d and %d", pricing.MinDays, pricing.MaxDays)
	}

	req.Content = req.Content.Normalize()
	if req.Content.ServerName == "" || req.Content.ServerAddress == "" {
		return validationError(CodeInvalidContent, "server name and address are required")
	}

	req.Provider = slotbookings.Provider(strings.ToUpper(string(req.Provider)))
	if layout.Paid(req.Slot) {
		switch {
		case req.Provider == "" || req.Provider == slotbookings.ProviderFree:
			return validationError(CodePaymentRequired, "slot %d requires a payment provider", req.Slot)
		case !req.Provider.Paid() || s.gateways == nil || !s.gateways.Supports(payments.Provider(req.Provider)):
			return validationError(CodeProviderUnsupported, "payment provider %q is not supported", req.Provider)
		}
		return nil
	}

	if req.Provider == "" {
		req.Provider = slotbookings.ProviderFree
	}
	if req.Provider != slotbookings.ProviderFree {
		return validationError(CodePaymentNotApplicable, "slot %d is free and takes no payment", req.Slot)
	}
	return nil
}

// Create claims a slot for the owner's advertisement. Paid-tier bookings are
// handed to the payment provider once the claim has committed; a provider
// failure returns the committed booking alongside the error.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := s.validateCreate(&req); err != nil {
		s.metrics.rejected(err)
		return nil, err
	}

	monthly := req.DurationKind == slotbookings.DurationMonthly
	paidTier := s.cfg.Layout.Paid(req.Slot)

	res := &CreateResult{}
	var swept SweepResult
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		if swept, err = s.sweep(ctx, tx); err != nil {
			return err
		}
		if err := s.ensureSlotFree(ctx, tx, req.Slot); err != nil {
			return err
		}

		quote := pricing.Quote{Days: pricing.Days(monthly, req.Days)}
		if paidTier {
			cfg, err := s.pricingConfig(ctx, tx)
			if err != nil {
				return err
			}
			quote = pricing.Price(*cfg, req.Slot, monthly, req.Days)
			if !quote.Billable() {
				return validationError(CodePriceNotConfigured, "slot %d has no price for %d days", req.Slot, quote.Days)
			}
		}

		ad, err := s.upsertAdvertisement(ctx, tx, req.OwnerID, req.OwnerDisplayName, req.Content)
		if err != nil {
			return err
		}

		slot := req.Slot
		b := &slotbookings.Booking{
			AdvertisementID: ad.ID,
			OwnerID:         req.OwnerID,
			Slot:            req.Slot,
			DurationKind:    req.DurationKind,
			Days:            quote.Days,
			Currency:        s.cfg.Currency,
			DailyPrice:      quote.DailyPrice,
			DiscountPct:     quote.DiscountPct,
			TotalPrice:      quote.TotalPrice,
			Status:          slotbookings.StatusPending,
			Provider:        req.Provider,
			OccupancyKey:    &slot,
		}
		if err := tx.Bookings.Insert(ctx, b); err != nil {
			if errors.Is(err, slotbookings.ErrSlotOccupied) {
				return conflictError(CodeSlotOccupied, "slot %d is already taken", req.Slot)
			}
			return err
		}

		res.Booking = b
		res.Advertisement = ad
		return nil
	})
	if err != nil {
		s.metrics.rejected(err)
		return nil, err
	}

	s.afterSweep(ctx, swept)
	// a resubmission can move the advertisement out of APPROVED
	s.invalidateProjection(ctx)
	s.metrics.created(s.cfg.Layout.Tier(req.Slot))
	s.logger.Infow("slot booking created",
		"booking_id", res.Booking.ID,
		"slot", res.Booking.Slot,
		"owner_id", req.OwnerID,
		"provider", res.Booking.Provider,
		"total", res.Booking.TotalPrice.String(),
		"ad_status", res.Advertisement.Status,
	)

	if req.Provider.Paid() {
		po, err := s.startPayment(ctx, res.Booking, req.Customer)
		if err != nil {
			return res, err
		}
		res.Payment = po
	}
	return res, nil
}

func (s *Service) ensureSlotFree(ctx context.Context, tx *storage.Tx, slot int) error {
	ov, err := tx.Overrides.Get(ctx, slot)
	if err != nil {
		return err
	}
	if ov != nil {
		return conflictError(CodeSlotOccupiedByOverride, "slot %d is reserved by an administrator", slot)
	}

	holder, err := tx.Bookings.SlotHolder(ctx, slot)
	if err != nil {
		return err
	}
	if holder != nil {
		return conflictError(CodeSlotOccupied, "slot %d is already taken", slot)
	}
	return nil
}

func (s *Service) pricingConfig(ctx context.Context, tx *storage.Tx) (*pricing.Config, error) {
	cfg, err := tx.Pricing.Load(ctx)
	if err != nil {
		return nil, err
	}
	cfg.DefaultDailyPrice = s.cfg.DefaultDailyPrice
	return cfg, nil
}

type Outcome string

const (
	OutcomeActive        Outcome = "ACTIVE"
	OutcomePendingReview Outcome = "PENDING_REVIEW"
)

type ConfirmResult struct {
	Booking *slotbookings.Booking `json:"booking"`
	Outcome Outcome               `json:"status"`
}

// settled returns the result for a booking whose payment was already
// accepted, so repeated confirmations have no side effects.
func settled(b *slotbookings.Booking) *ConfirmResult {
	switch {
	case b.Status == slotbookings.StatusActive:
		return &ConfirmResult{Booking: b, Outcome: OutcomeActive}
	case b.Status == slotbookings.StatusPending && b.PaidAt != nil:
		return &ConfirmResult{Booking: b, Outcome: OutcomePendingReview}
	}
	return nil
}

// ConfirmPayment applies a provider verdict to a booking. On success the
// booking is marked paid and activated when its advertisement is already
// approved; otherwise it waits for moderation.
func (s *Service) ConfirmPayment(ctx context.Context, bookingID int64, v payments.Verification) (*ConfirmResult, error) {
	var (
		res        *ConfirmResult
		outcomeErr error
		activated  bool
		provider   string
	)

	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		b, err := s.lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		provider = string(b.Provider)

		if r := settled(b); r != nil {
			res = r
			return nil
		}

		if b.Status != slotbookings.StatusPending {
			if v.Success {
				s.logger.Warnw("payment succeeded for a closed booking", "booking_id", b.ID, "status", b.Status, "state", v.State)
				if err := tx.PayLogs.Insert(ctx, b.ID, paymentlogs.TypeError, map[string]any{
					"stage":          "late_payment",
					"state":          v.State,
					"booking_status": b.Status,
				}); err != nil {
					return err
				}
			}
			outcomeErr = conflictError(CodeBookingClosed, "booking %d is %s", b.ID, strings.ToLower(string(b.Status)))
			return nil
		}
		if !b.Provider.Paid() {
			return validationError(CodePaymentNotApplicable, "booking %d is a free request", b.ID)
		}

		if v.State != "" {
			if err := tx.Bookings.SetProviderStatus(ctx, b.ID, v.State); err != nil {
				return err
			}
			state := v.State
			b.ProviderStatus = &state
		}
		if !v.Success {
			// commit the raw status, report the failure after
			outcomeErr = paymentNotCompleted(v.State)
			return nil
		}

		now := s.now()
		if err := tx.Bookings.MarkPaid(ctx, b.ID, now); err != nil {
			return err
		}
		b.PaidAt = &now

		ad, err := tx.Advertisements.GetByID(ctx, b.AdvertisementID)
		if err != nil {
			return err
		}

		res = &ConfirmResult{Booking: b, Outcome: OutcomePendingReview}
		if ad.Approved() {
			if err := s.activate(ctx, tx, b, now); err != nil {
				return err
			}
			res.Outcome = OutcomeActive
			activated = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcomeErr != nil {
		e, _ := asError(outcomeErr)
		s.metrics.confirmation(provider, strings.ToLower(e.Code))
		return nil, outcomeErr
	}

	s.metrics.confirmation(provider, strings.ToLower(string(res.Outcome)))
	if activated {
		s.onActivated(ctx, *res.Booking)
	}
	return res, nil
}

// OnAdvertisementApproved activates the most recent booking of the
// advertisement that was only waiting for approval. It returns nil when
// there is nothing to activate.
func (s *Service) OnAdvertisementApproved(ctx context.Context, adID int64) (*slotbookings.Booking, error) {
	var activated *slotbookings.Booking
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		activated, err = s.approveTx(ctx, tx, adID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if activated != nil {
		s.onActivated(ctx, *activated)
	}
	return activated, nil
}

func (s *Service) approveTx(ctx context.Context, tx *storage.Tx, adID int64) (*slotbookings.Booking, error) {
	ad, err := s.getAdvertisement(ctx, tx, adID)
	if err != nil {
		return nil, err
	}
	if !ad.Approved() {
		return nil, nil
	}

	b, err := tx.Bookings.LatestAwaitingActivation(ctx, adID)
	if err != nil || b == nil {
		return nil, err
	}
	if err := s.activate(ctx, tx, b, s.now()); err != nil {
		return nil, err
	}
	return b, nil
}

// OnAdvertisementRejected cancels every live booking of the advertisement,
// freeing their slots at once.
func (s *Service) OnAdvertisementRejected(ctx context.Context, adID int64) ([]slotbookings.Booking, error) {
	var canceled []slotbookings.Booking
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if _, err := s.getAdvertisement(ctx, tx, adID); err != nil {
			return err
		}
		var err error
		canceled, err = s.cancelLiveTx(ctx, tx, adID, slotbookings.ReasonAdRejected)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.onCanceled(ctx, canceled, slotbookings.ReasonAdRejected)
	return canceled, nil
}

func (s *Service) cancelLiveTx(ctx context.Context, tx *storage.Tx, adID int64, reason string) ([]slotbookings.Booking, error) {
	live, err := tx.Bookings.ListLiveByAdvertisement(ctx, adID)
	if err != nil {
		return nil, err
	}
	for i := range live {
		if err := tx.Bookings.Cancel(ctx, live[i].ID, reason); err != nil {
			return nil, err
		}
		live[i].Status = slotbookings.StatusCanceled
		live[i].OccupancyKey = nil
		r := reason
		live[i].CancelReason = &r
	}
	return live, nil
}

func (s *Service) activate(ctx context.Context, tx *storage.Tx, b *slotbookings.Booking, now time.Time) error {
	ends := now.Add(time.Duration(b.Days) * 24 * time.Hour)
	if err := tx.Bookings.Activate(ctx, b.ID, now, ends); err != nil {
		return err
	}
	b.Status = slotbookings.StatusActive
	b.StartsAt = &now
	b.EndsAt = &ends
	return nil
}

func (s *Service) lockBooking(ctx context.Context, tx *storage.Tx, id int64) (*slotbookings.Booking, error) {
	b, err := tx.Bookings.GetByIDForUpdate(ctx, id)
	if errors.Is(err, slotbookings.ErrNotFound) {
		return nil, notFoundError(CodeBookingNotFound, "booking %d not found", id)
	}
	return b, err
}

func (s *Service) getAdvertisement(ctx context.Context, tx *storage.Tx, id int64) (*advertisements.Advertisement, error) {
	ad, err := tx.Advertisements.GetByID(ctx, id)
	if errors.Is(err, advertisements.ErrNotFound) {
		return nil, notFoundError(CodeAdvertisementNotFound, "advertisement %d not found", id)
	}
	return ad, err
}

func (s *Service) onActivated(ctx context.Context, b slotbookings.Booking) {
	s.metrics.activated()
	s.invalidateProjection(ctx)
	s.logger.Infow("slot booking activated", "booking_id", b.ID, "slot", b.Slot, "ends_at", b.EndsAt)
	if s.notifier != nil {
		s.notifier.BookingActivated(ctx, b)
	}
}

func (s *Service) onCanceled(ctx context.Context, canceled []slotbookings.Booking, reason string) {
	if len(canceled) == 0 {
		return
	}
	s.metrics.canceled(reason, len(canceled))
	s.invalidateProjection(ctx)
	for _, b := range canceled {
		s.logger.Infow("slot booking canceled", "booking_id", b.ID, "slot", b.Slot, "reason", reason)
		if s.notifier != nil {
			s.notifier.BookingCanceled(ctx, b)
		}
	}
}
