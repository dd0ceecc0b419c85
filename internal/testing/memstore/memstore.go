// Package memstore backs allocator tests with an in-memory copy of the
// booking tables.
package memstore

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"time"

	"adslots/internal/domain/advertisements"
	"adslots/internal/domain/overrides"
	"adslots/internal/domain/paymentlogs"
	"adslots/internal/domain/pricing"
	"adslots/internal/domain/slotbookings"
	"adslots/internal/domain/storage"

	"github.com/shopspring/decimal"
)

// Store is an in-process stand-in for the Postgres unit of work.
// Transactions are fully serialised and run on a copy of the state that
// replaces it only on success, so a failed unit of work leaves nothing
// behind. A live booking claims its slot exactly like the partial unique
// index does.
type Store struct {
	mu  sync.Mutex
	st  *memState
	now func() time.Time
}

func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{st: newMemState(), now: now}
}

func (m *Store) WithTx(ctx context.Context, fn func(tx *storage.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.st.clone()
	if err := fn(&storage.Tx{
		Advertisements: &memAds{st: work, now: m.now},
		Bookings:       &memBookings{st: work, now: m.now},
		Overrides:      &memOverrides{st: work, now: m.now},
		Pricing:        &memPricing{st: work},
		PayLogs:        &memLogs{st: work, now: m.now},
	}); err != nil {
		return err
	}
	m.st = work
	return nil
}

type memState struct {
	ads       map[int64]advertisements.Advertisement
	bookings  map[int64]slotbookings.Booking
	overrides map[int]overrides.Override
	cells     map[int]map[int]decimal.Decimal
	rates     map[int]pricing.Rate
	logs      []paymentlogs.Log

	lastAd, lastBooking, lastLog int64
}

func newMemState() *memState {
	return &memState{
		ads:       make(map[int64]advertisements.Advertisement),
		bookings:  make(map[int64]slotbookings.Booking),
		overrides: make(map[int]overrides.Override),
		cells:     make(map[int]map[int]decimal.Decimal),
		rates:     make(map[int]pricing.Rate),
	}
}

func (s *memState) clone() *memState {
	c := *s
	c.ads = maps.Clone(s.ads)
	c.bookings = maps.Clone(s.bookings)
	c.overrides = maps.Clone(s.overrides)
	c.rates = maps.Clone(s.rates)
	c.cells = make(map[int]map[int]decimal.Decimal, len(s.cells))
	for slot, row := range s.cells {
		c.cells[slot] = maps.Clone(row)
	}
	c.logs = slices.Clone(s.logs)
	return &c
}

func page[T any](list []T, limit, offset int) []T {
	if offset >= len(list) {
		return nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}

type memAds struct {
	st  *memState
	now func() time.Time
}

func (r *memAds) GetByID(_ context.Context, id int64) (*advertisements.Advertisement, error) {
	ad, ok := r.st.ads[id]
	if !ok {
		return nil, advertisements.ErrNotFound
	}
	return &ad, nil
}

func (r *memAds) GetByOwner(_ context.Context, ownerID int64) (*advertisements.Advertisement, error) {
	for _, ad := range r.st.ads {
		if ad.OwnerID == ownerID {
			return &ad, nil
		}
	}
	return nil, advertisements.ErrNotFound
}

func (r *memAds) GetByIDs(_ context.Context, ids []int64) (map[int64]*advertisements.Advertisement, error) {
	out := make(map[int64]*advertisements.Advertisement, len(ids))
	for _, id := range ids {
		if ad, ok := r.st.ads[id]; ok {
			out[id] = &ad
		}
	}
	return out, nil
}

func (r *memAds) Create(_ context.Context, ad *advertisements.Advertisement) error {
	for _, other := range r.st.ads {
		if other.OwnerID == ad.OwnerID {
			return advertisements.ErrOwnerExists
		}
	}
	r.st.lastAd++
	ad.ID = r.st.lastAd
	ad.CreatedAt = r.now()
	ad.UpdatedAt = ad.CreatedAt
	r.st.ads[ad.ID] = *ad
	return nil
}

func (r *memAds) UpdateContent(_ context.Context, ad *advertisements.Advertisement) error {
	cur, ok := r.st.ads[ad.ID]
	if !ok {
		return advertisements.ErrNotFound
	}
	cur.OwnerDisplayName = ad.OwnerDisplayName
	cur.Content = ad.Content
	cur.Status = ad.Status
	cur.RejectionReason = nil
	cur.UpdatedAt = r.now()
	r.st.ads[ad.ID] = cur
	ad.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *memAds) SetStatus(_ context.Context, id int64, status advertisements.Status, reason *string) error {
	cur, ok := r.st.ads[id]
	if !ok {
		return advertisements.ErrNotFound
	}
	cur.Status = status
	cur.RejectionReason = reason
	cur.UpdatedAt = r.now()
	r.st.ads[id] = cur
	return nil
}

func (r *memAds) List(_ context.Context, filter advertisements.ListFilter) ([]advertisements.Advertisement, int, error) {
	var list []advertisements.Advertisement
	for _, ad := range r.st.ads {
		if filter.Status == "" || ad.Status == filter.Status {
			list = append(list, ad)
		}
	}
	slices.SortFunc(list, func(a, b advertisements.Advertisement) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return page(list, filter.Limit, filter.Offset), len(list), nil
}

// Delete cascades to the advertisement's bookings like the foreign key does.
func (r *memAds) Delete(_ context.Context, id int64) error {
	if _, ok := r.st.ads[id]; !ok {
		return advertisements.ErrNotFound
	}
	delete(r.st.ads, id)
	for bid, b := range r.st.bookings {
		if b.AdvertisementID == id {
			delete(r.st.bookings, bid)
		}
	}
	return nil
}

type memBookings struct {
	st  *memState
	now func() time.Time
}

func (r *memBookings) Insert(_ context.Context, b *slotbookings.Booking) error {
	if b.OccupancyKey != nil {
		for _, other := range r.st.bookings {
			if other.OccupancyKey != nil && *other.OccupancyKey == *b.OccupancyKey {
				return slotbookings.ErrSlotOccupied
			}
		}
	}
	r.st.lastBooking++
	b.ID = r.st.lastBooking
	b.CreatedAt = r.now()
	b.UpdatedAt = b.CreatedAt
	r.st.bookings[b.ID] = *b
	return nil
}

func (r *memBookings) GetByID(_ context.Context, id int64) (*slotbookings.Booking, error) {
	b, ok := r.st.bookings[id]
	if !ok {
		return nil, slotbookings.ErrNotFound
	}
	return &b, nil
}

func (r *memBookings) GetByIDForUpdate(ctx context.Context, id int64) (*slotbookings.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *memBookings) GetByProviderRef(_ context.Context, provider slotbookings.Provider, ref string) (*slotbookings.Booking, error) {
	for _, b := range r.st.bookings {
		if b.Provider == provider && b.ProviderRef != nil && *b.ProviderRef == ref {
			return &b, nil
		}
	}
	return nil, slotbookings.ErrNotFound
}

func (r *memBookings) SlotHolder(_ context.Context, slot int) (*slotbookings.Booking, error) {
	for _, b := range r.st.bookings {
		if b.OccupancyKey != nil && *b.OccupancyKey == slot {
			return &b, nil
		}
	}
	return nil, nil
}

func (r *memBookings) OccupiedSlots(_ context.Context) (map[int]int64, error) {
	out := make(map[int]int64)
	for _, b := range r.st.bookings {
		if b.OccupancyKey != nil {
			out[*b.OccupancyKey] = b.ID
		}
	}
	return out, nil
}

func (r *memBookings) update(id int64, ok func(b *slotbookings.Booking) bool, apply func(b *slotbookings.Booking)) error {
	b, found := r.st.bookings[id]
	if !found || (ok != nil && !ok(&b)) {
		return slotbookings.ErrNotFound
	}
	apply(&b)
	b.UpdatedAt = r.now()
	r.st.bookings[id] = b
	return nil
}

func (r *memBookings) ExpireEnded(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, b := range r.st.bookings {
		if b.Status == slotbookings.StatusActive && b.EndsAt != nil && b.EndsAt.Before(now) {
			b.Status = slotbookings.StatusExpired
			b.OccupancyKey = nil
			b.UpdatedAt = r.now()
			r.st.bookings[id] = b
			n++
		}
	}
	return n, nil
}

func (r *memBookings) CancelStaleHolds(_ context.Context, createdBefore time.Time) ([]slotbookings.Booking, error) {
	var out []slotbookings.Booking
	reason := slotbookings.ReasonHoldExpired
	for id, b := range r.st.bookings {
		if b.AwaitingPayment() && b.CreatedAt.Before(createdBefore) {
			b.Status = slotbookings.StatusCanceled
			b.OccupancyKey = nil
			b.CancelReason = &reason
			b.UpdatedAt = r.now()
			r.st.bookings[id] = b
			out = append(out, b)
		}
	}
	slices.SortFunc(out, byID)
	return out, nil
}

func (r *memBookings) SetProviderRef(_ context.Context, id int64, ref string) error {
	return r.update(id, nil, func(b *slotbookings.Booking) { b.ProviderRef = &ref })
}

func (r *memBookings) SetProviderStatus(_ context.Context, id int64, status string) error {
	return r.update(id, nil, func(b *slotbookings.Booking) { b.ProviderStatus = &status })
}

func (r *memBookings) MarkPaid(_ context.Context, id int64, paidAt time.Time) error {
	return r.update(id,
		func(b *slotbookings.Booking) bool { return b.Status == slotbookings.StatusPending && b.PaidAt == nil },
		func(b *slotbookings.Booking) { b.PaidAt = &paidAt },
	)
}

func (r *memBookings) Activate(_ context.Context, id int64, startsAt, endsAt time.Time) error {
	return r.update(id,
		func(b *slotbookings.Booking) bool { return b.Status == slotbookings.StatusPending },
		func(b *slotbookings.Booking) {
			b.Status = slotbookings.StatusActive
			b.StartsAt = &startsAt
			b.EndsAt = &endsAt
		},
	)
}

func (r *memBookings) Cancel(_ context.Context, id int64, reason string) error {
	return r.update(id,
		func(b *slotbookings.Booking) bool { return b.Live() },
		func(b *slotbookings.Booking) {
			b.Status = slotbookings.StatusCanceled
			b.OccupancyKey = nil
			b.CancelReason = &reason
		},
	)
}

func (r *memBookings) sorted(keep func(b slotbookings.Booking) bool, cmp func(a, b slotbookings.Booking) int) []slotbookings.Booking {
	var out []slotbookings.Booking
	for _, b := range r.st.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, cmp)
	return out
}

func byID(a, b slotbookings.Booking) int { return int(a.ID - b.ID) }

func newestFirst(a, b slotbookings.Booking) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return int(b.ID - a.ID)
}

func (r *memBookings) ListLiveByAdvertisement(_ context.Context, adID int64) ([]slotbookings.Booking, error) {
	return r.sorted(func(b slotbookings.Booking) bool {
		return b.AdvertisementID == adID && b.Live()
	}, byID), nil
}

func (r *memBookings) LatestAwaitingActivation(_ context.Context, adID int64) (*slotbookings.Booking, error) {
	list := r.sorted(func(b slotbookings.Booking) bool {
		return b.AdvertisementID == adID && b.AwaitingActivation()
	}, newestFirst)
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func (r *memBookings) ListActive(_ context.Context, now time.Time) ([]slotbookings.Booking, error) {
	return r.sorted(func(b slotbookings.Booking) bool {
		return b.Status == slotbookings.StatusActive && b.EndsAt != nil && b.EndsAt.After(now)
	}, func(a, b slotbookings.Booking) int { return a.Slot - b.Slot }), nil
}

func (r *memBookings) List(_ context.Context, f slotbookings.ListFilter) ([]slotbookings.Booking, int, error) {
	list := r.sorted(func(b slotbookings.Booking) bool {
		return (f.OwnerID == 0 || b.OwnerID == f.OwnerID) &&
			(f.AdvertisementID == 0 || b.AdvertisementID == f.AdvertisementID) &&
			(f.Status == "" || b.Status == f.Status)
	}, newestFirst)
	return page(list, f.Limit, f.Offset), len(list), nil
}

type memOverrides struct {
	st  *memState
	now func() time.Time
}

func (r *memOverrides) List(_ context.Context) ([]overrides.Override, error) {
	out := slices.Collect(maps.Values(r.st.overrides))
	slices.SortFunc(out, func(a, b overrides.Override) int { return a.Slot - b.Slot })
	return out, nil
}

func (r *memOverrides) Get(_ context.Context, slot int) (*overrides.Override, error) {
	o, ok := r.st.overrides[slot]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *memOverrides) Put(_ context.Context, o *overrides.Override) error {
	o.CreatedAt = r.now()
	r.st.overrides[o.Slot] = *o
	return nil
}

func (r *memOverrides) Delete(_ context.Context, slot int) error {
	if _, ok := r.st.overrides[slot]; !ok {
		return overrides.ErrNotFound
	}
	delete(r.st.overrides, slot)
	return nil
}

type memPricing struct {
	st *memState
}

func (r *memPricing) Load(_ context.Context) (*pricing.Config, error) {
	cfg := &pricing.Config{
		Cells: make(map[int]map[int]decimal.Decimal, len(r.st.cells)),
		Rates: maps.Clone(r.st.rates),
	}
	for slot, row := range r.st.cells {
		cfg.Cells[slot] = maps.Clone(row)
	}
	return cfg, nil
}

func (r *memPricing) SetCell(_ context.Context, slot, days int, total decimal.Decimal) error {
	if r.st.cells[slot] == nil {
		r.st.cells[slot] = make(map[int]decimal.Decimal)
	}
	r.st.cells[slot][days] = total
	return nil
}

func (r *memPricing) DeleteCell(_ context.Context, slot, days int) error {
	delete(r.st.cells[slot], days)
	return nil
}

func (r *memPricing) SetRate(_ context.Context, rate pricing.Rate) error {
	r.st.rates[rate.Slot] = rate
	return nil
}

type memLogs struct {
	st  *memState
	now func() time.Time
}

func (r *memLogs) Insert(_ context.Context, bookingID int64, logType string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}
	r.st.lastLog++
	r.st.logs = append(r.st.logs, paymentlogs.Log{
		ID:        r.st.lastLog,
		BookingID: bookingID,
		LogType:   logType,
		Payload:   raw,
		CreatedAt: r.now(),
	})
	return nil
}

func (r *memLogs) ListByBooking(_ context.Context, bookingID int64) ([]paymentlogs.Log, error) {
	var out []paymentlogs.Log
	for _, l := range r.st.logs {
		if l.BookingID == bookingID {
			out = append(out, l)
		}
	}
	return out, nil
}
