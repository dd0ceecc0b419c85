package allocator

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"adslots/internal/domain/advertisements"
	"adslots/internal/domain/pricing"
	"adslots/internal/domain/storage"
)

const ProjectionCacheKey = "adslots:projection"

type Source string

const (
	SourceOverride Source = "OVERRIDE"
	SourceBooking  Source = "BOOKING"
)

// PublicAdvertisement is what the client app may show about an advertisement.
type PublicAdvertisement struct {
	ID               int64    `json:"id"`
	OwnerDisplayName string   `json:"owner_display_name"`
	ServerName       string   `json:"server_name"`
	ServerAddress    string   `json:"server_address"`
	ServerVersion    string   `json:"server_version,omitempty"`
	Description      string   `json:"description,omitempty"`
	Links            []string `json:"links,omitempty"`
	BannerURL        string   `json:"banner_url,omitempty"`
}

func publicAdvertisement(ad *advertisements.Advertisement) PublicAdvertisement {
	return PublicAdvertisement{
		ID:               ad.ID,
		OwnerDisplayName: ad.OwnerDisplayName,
		ServerName:       ad.Content.ServerName,
		ServerAddress:    ad.Content.ServerAddress,
		ServerVersion:    ad.Content.ServerVersion,
		Description:      ad.Content.Description,
		Links:            ad.Content.Links,
		BannerURL:        ad.Content.BannerURL,
	}
}

type ProjectionEntry struct {
	Slot          int                 `json:"slot"`
	VIP           bool                `json:"vip"`
	Source        Source              `json:"source"`
	BookingID     *int64              `json:"booking_id,omitempty"`
	ActiveUntil   *time.Time          `json:"active_until,omitempty"`
	Advertisement PublicAdvertisement `json:"advertisement"`
}

// ActiveProjection lists what is on display right now: overrides first, then
// running bookings on the remaining slots, VIP first and by slot after that.
// Only approved advertisements are shown; an override whose advertisement
// lost approval leaves its slot empty.
func (s *Service) ActiveProjection(ctx context.Context) ([]ProjectionEntry, error) {
	now := s.now()
	if entries, ok := s.cachedProjection(ctx); ok {
		return stillRunning(entries, now), nil
	}

	var entries []ProjectionEntry
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		entries, err = s.buildProjection(ctx, tx, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.storeProjection(ctx, entries)
	return entries, nil
}

func (s *Service) buildProjection(ctx context.Context, tx *storage.Tx, now time.Time) ([]ProjectionEntry, error) {
	ovs, err := tx.Overrides.List(ctx)
	if err != nil {
		return nil, err
	}
	active, err := tx.Bookings.ListActive(ctx, now)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(ovs)+len(active))
	for _, o := range ovs {
		ids = append(ids, o.AdvertisementID)
	}
	for _, b := range active {
		ids = append(ids, b.AdvertisementID)
	}
	ads, err := tx.Advertisements.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]ProjectionEntry, 0, len(ovs)+len(active))
	overridden := make(map[int]bool, len(ovs))
	for _, o := range ovs {
		overridden[o.Slot] = true
		ad := ads[o.AdvertisementID]
		if !ad.Approved() || !s.cfg.Layout.Valid(o.Slot) {
			continue
		}
		entries = append(entries, ProjectionEntry{
			Slot:          o.Slot,
			VIP:           o.Slot == VIPSlot,
			Source:        SourceOverride,
			Advertisement: publicAdvertisement(ad),
		})
	}

	for _, b := range active {
		if overridden[b.Slot] || !s.cfg.Layout.Valid(b.Slot) {
			continue
		}
		ad := ads[b.AdvertisementID]
		if !ad.Approved() {
			continue
		}
		id := b.ID
		entries = append(entries, ProjectionEntry{
			Slot:          b.Slot,
			VIP:           b.Slot == VIPSlot,
			Source:        SourceBooking,
			BookingID:     &id,
			ActiveUntil:   b.EndsAt,
			Advertisement: publicAdvertisement(ad),
		})
	}

	slices.SortFunc(entries, func(a, b ProjectionEntry) int {
		if a.VIP != b.VIP {
			if a.VIP {
				return -1
			}
			return 1
		}
		return a.Slot - b.Slot
	})
	return entries, nil
}

// stillRunning drops cached booking entries whose period ended since they
// were cached.
func stillRunning(entries []ProjectionEntry, now time.Time) []ProjectionEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.ActiveUntil != nil && !e.ActiveUntil.After(now) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *Service) cachedProjection(ctx context.Context) ([]ProjectionEntry, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, ProjectionCacheKey)
	if err != nil {
		s.logger.Warnw("projection cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entries []ProjectionEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.logger.Warnw("projection cache entry is corrupt", "error", err)
		return nil, false
	}
	return entries, true
}

func (s *Service) storeProjection(ctx context.Context, entries []ProjectionEntry) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, ProjectionCacheKey, raw, s.cfg.ProjectionTTL); err != nil {
		s.logger.Warnw("projection cache write failed", "error", err)
	}
}

func (s *Service) invalidateProjection(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, ProjectionCacheKey); err != nil {
		s.logger.Warnw("projection cache invalidation failed", "error", err)
	}
}

// availability reasons
const (
	UnavailableOccupied      = "OCCUPIED"
	UnavailableOverride      = "OVERRIDE"
	UnavailableNotConfigured = "PRICE_NOT_CONFIGURED"
)

type SlotAvailability struct {
	Slot      int            `json:"slot"`
	VIP       bool           `json:"vip"`
	Tier      string         `json:"tier"`
	Available bool           `json:"available"`
	Reason    string         `json:"reason,omitempty"`
	Quote     *pricing.Quote `json:"quote,omitempty"`
}

// AvailableSlots reports every slot with its availability and, for the paid
// tier, the price of the requested duration.
func (s *Service) AvailableSlots(ctx context.Context, monthly bool, days int) ([]SlotAvailability, error) {
	layout := s.cfg.Layout
	out := make([]SlotAvailability, 0, layout.TotalSlots)

	var swept SweepResult
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		if swept, err = s.sweep(ctx, tx); err != nil {
			return err
		}

		ovs, err := tx.Overrides.List(ctx)
		if err != nil {
			return err
		}
		overridden := make(map[int]bool, len(ovs))
		for _, o := range ovs {
			overridden[o.Slot] = true
		}

		occupied, err := tx.Bookings.OccupiedSlots(ctx)
		if err != nil {
			return err
		}
		cfg, err := s.pricingConfig(ctx, tx)
		if err != nil {
			return err
		}

		for slot := 1; slot <= layout.TotalSlots; slot++ {
			a := SlotAvailability{
				Slot:      slot,
				VIP:       slot == VIPSlot,
				Tier:      layout.Tier(slot),
				Available: true,
			}
			if layout.Paid(slot) {
				q := pricing.Price(*cfg, slot, monthly, days)
				a.Quote = &q
				if !q.Billable() {
					a.Available, a.Reason = false, UnavailableNotConfigured
				}
			}
			if _, ok := occupied[slot]; ok {
				a.Available, a.Reason = false, UnavailableOccupied
			}
			if overridden[slot] {
				a.Available, a.Reason = false, UnavailableOverride
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterSweep(ctx, swept)
	return out, nil
}
