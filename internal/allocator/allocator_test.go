package allocator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"adslots/internal/cache"
	"adslots/internal/domain/advertisements"
	"adslots/internal/domain/overrides"
	"adslots/internal/domain/paymentlogs"
	"adslots/internal/domain/slotbookings"
	"adslots/internal/domain/storage"
	"adslots/internal/payments"
	"adslots/internal/testing/memstore"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeGateways struct {
	mu         sync.Mutex
	createErr  error
	confirmErr error
	verdict    payments.Verification
	// verdicts overrides verdict per external id
	verdicts  map[string]payments.Verification
	resumable bool
	orders    []payments.Order
}

func (g *fakeGateways) Supports(p payments.Provider) bool {
	return p == payments.Khalti || p == payments.Esewa
}

func (g *fakeGateways) CreatePayableOrder(_ context.Context, p payments.Provider, order payments.Order) (payments.PayableOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return payments.PayableOrder{}, g.createErr
	}
	g.orders = append(g.orders, order)

	ext := fmt.Sprintf("ext-%d", order.BookingID)
	if n := g.attempts(order.BookingID); n > 1 {
		ext = fmt.Sprintf("%s-%d", ext, n)
	}
	return payments.PayableOrder{
		Provider:    p,
		ExternalID:  ext,
		RedirectURL: "https://pay.example.com/" + order.Reference,
		Method:      "GET",
	}, nil
}

func (g *fakeGateways) ConfirmOrder(_ context.Context, _ payments.Provider, c payments.Confirmation) (payments.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.confirmErr != nil {
		return payments.Verification{}, g.confirmErr
	}
	v := g.verdict
	if pv, ok := g.verdicts[c.ExternalID]; ok {
		v = pv
	}
	v.ExternalID = c.ExternalID
	return v, nil
}

func (g *fakeGateways) ResumeOrder(p payments.Provider, externalID string, _ payments.Order) (payments.PayableOrder, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.resumable {
		return payments.PayableOrder{}, false
	}
	return payments.PayableOrder{
		Provider:    p,
		ExternalID:  externalID,
		RedirectURL: "https://pay.example.com/resume/" + externalID,
		Method:      "GET",
	}, true
}

func (g *fakeGateways) attempts(bookingID int64) int {
	n := 0
	for _, o := range g.orders {
		if o.BookingID == bookingID {
			n++
		}
	}
	return n
}

func (g *fakeGateways) orderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

type recordingNotifier struct {
	mu        sync.Mutex
	activated []int64
	canceled  []int64
	rejected  []int64
}

func (n *recordingNotifier) BookingActivated(_ context.Context, b slotbookings.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activated = append(n.activated, b.ID)
}

func (n *recordingNotifier) BookingCanceled(_ context.Context, b slotbookings.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.canceled = append(n.canceled, b.ID)
}

func (n *recordingNotifier) AdvertisementRejected(_ context.Context, ad advertisements.Advertisement) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejected = append(n.rejected, ad.ID)
}

type harness struct {
	svc      *Service
	store    *memstore.Store
	clock    *testClock
	gw       *fakeGateways
	notifier *recordingNotifier
	metrics  *Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	h := &harness{
		store:    memstore.New(clock.Now),
		clock:    clock,
		gw:       &fakeGateways{verdict: payments.Verification{Success: true, State: "Completed"}},
		notifier: &recordingNotifier{},
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	h.svc = NewService(Config{
		Layout:            Layout{TotalSlots: 10, PaidSlots: 5},
		DefaultDailyPrice: decimal.NewFromInt(100),
	}, Deps{
		Store:    h.store,
		Gateways: h.gw,
		Metrics:  h.metrics,
		Cache:    cache.NewMemory(),
		Notifier: h.notifier,
		Now:      clock.Now,
	})
	return h
}

func content(name string) advertisements.Content {
	return advertisements.Content{ServerName: name, ServerAddress: name + ".example.net:25565"}
}

func (h *harness) book(t *testing.T, owner int64, slot int, provider slotbookings.Provider) *CreateResult {
	t.Helper()
	res, err := h.svc.Create(context.Background(), CreateRequest{
		OwnerID:      owner,
		Slot:         slot,
		DurationKind: slotbookings.DurationCustom,
		Days:         7,
		Provider:     provider,
		Content:      content(fmt.Sprintf("owner%d", owner)),
	})
	require.NoError(t, err)
	return res
}

func (h *harness) booking(t *testing.T, id int64) *slotbookings.Booking {
	t.Helper()
	b, err := h.svc.GetBooking(context.Background(), id, 0)
	require.NoError(t, err)
	return b
}

func (h *harness) approve(t *testing.T, adID int64) *ModerationResult {
	t.Helper()
	res, err := h.svc.Moderate(context.Background(), adID, advertisements.StatusApproved, "")
	require.NoError(t, err)
	return res
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, code, e.Code)
}

func TestCreateConcurrentSameSlot(t *testing.T) {
	h := newHarness(t)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		refused int
	)
	for i := range n {
		wg.Add(1)
		go func(owner int64) {
			defer wg.Done()
			_, err := h.svc.Create(context.Background(), CreateRequest{
				OwnerID:      owner,
				Slot:         3,
				DurationKind: slotbookings.DurationCustom,
				Days:         5,
				Provider:     slotbookings.ProviderKhalti,
				Content:      content(fmt.Sprintf("racer%d", owner)),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrConflict):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, refused)
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateRequest
		code string
	}{
		{"slot out of range", CreateRequest{Slot: 11, DurationKind: slotbookings.DurationCustom, Days: 3, Provider: slotbookings.ProviderKhalti}, CodeInvalidSlot},
		{"bad duration", CreateRequest{Slot: 2, DurationKind: "WEEKLY", Provider: slotbookings.ProviderKhalti}, CodeInvalidDuration},
		{"paid slot without provider", CreateRequest{Slot: 2, DurationKind: slotbookings.DurationCustom, Days: 3}, CodePaymentRequired},
		{"paid slot marked free", CreateRequest{Slot: 2, DurationKind: slotbookings.DurationCustom, Days: 3, Provider: slotbookings.ProviderFree}, CodePaymentRequired},
		{"unknown provider", CreateRequest{Slot: 2, DurationKind: slotbookings.DurationCustom, Days: 3, Provider: "PAYPAL"}, CodeProviderUnsupported},
		{"too many days", CreateRequest{Slot: 2, DurationKind: slotbookings.DurationCustom, Days: 45, Provider: slotbookings.ProviderKhalti}, CodeInvalidDays},
		{"negative days", CreateRequest{Slot: 2, DurationKind: slotbookings.DurationCustom, Days: -3, Provider: slotbookings.ProviderKhalti}, CodeInvalidDays},
		{"zero days", CreateRequest{Slot: 7, DurationKind: slotbookings.DurationCustom, Days: 0}, CodeInvalidDays},
		{"free slot with provider", CreateRequest{Slot: 7, DurationKind: slotbookings.DurationCustom, Days: 3, Provider: slotbookings.ProviderEsewa}, CodePaymentNotApplicable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.OwnerID = 1
			tc.req.Content = content("valid")
			_, err := h.svc.Create(ctx, tc.req)
			require.ErrorIs(t, err, ErrValidation)
			requireCode(t, err, tc.code)
		})
	}

	_, err := h.svc.Create(ctx, CreateRequest{OwnerID: 1, Slot: 2, DurationKind: slotbookings.DurationCustom, Days: 3, Provider: slotbookings.ProviderKhalti})
	requireCode(t, err, CodeInvalidContent)

	// days only matter for CUSTOM
	res, err := h.svc.Create(ctx, CreateRequest{
		OwnerID: 2, Slot: 2, DurationKind: slotbookings.DurationMonthly,
		Provider: slotbookings.ProviderKhalti, Content: content("monthly"),
	})
	require.NoError(t, err)
	assert.Equal(t, 30, res.Booking.Days)

	edge, err := h.svc.Create(ctx, CreateRequest{
		OwnerID: 3, Slot: 3, DurationKind: slotbookings.DurationCustom, Days: 30,
		Provider: slotbookings.ProviderKhalti, Content: content("edge"),
	})
	require.NoError(t, err)
	assert.Equal(t, 30, edge.Booking.Days)
}

func TestCreatePriceNotConfigured(t *testing.T) {
	h := newHarness(t)
	h.svc.cfg.DefaultDailyPrice = decimal.Zero

	_, err := h.svc.Create(context.Background(), CreateRequest{
		OwnerID:      1,
		Slot:         2,
		DurationKind: slotbookings.DurationCustom,
		Days:         3,
		Provider:     slotbookings.ProviderKhalti,
		Content:      content("nopricing"),
	})
	requireCode(t, err, CodePriceNotConfigured)
}

func TestCreateFreeRequest(t *testing.T) {
	h := newHarness(t)

	res := h.book(t, 1, 8, "")
	assert.Equal(t, slotbookings.ProviderFree, res.Booking.Provider)
	assert.Equal(t, slotbookings.StatusPending, res.Booking.Status)
	assert.True(t, res.Booking.TotalPrice.IsZero())
	assert.Nil(t, res.Payment)
	assert.Equal(t, advertisements.StatusPendingReview, res.Advertisement.Status)
}

// lostRaceBookings reports the slot as free, then loses the insert to a
// concurrent writer.
type lostRaceBookings struct {
	slotbookings.Store
}

func (lostRaceBookings) SlotHolder(context.Context, int) (*slotbookings.Booking, error) {
	return nil, nil
}

func (lostRaceBookings) Insert(context.Context, *slotbookings.Booking) error {
	return slotbookings.ErrSlotOccupied
}

type lostRaceStore struct {
	*memstore.Store
}

func (s lostRaceStore) WithTx(ctx context.Context, fn func(tx *storage.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx *storage.Tx) error {
		raced := *tx
		raced.Bookings = lostRaceBookings{Store: tx.Bookings}
		return fn(&raced)
	})
}

func TestCreateLosesInsertRace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	svc := NewService(Config{
		Layout:            Layout{TotalSlots: 10, PaidSlots: 5},
		DefaultDailyPrice: decimal.NewFromInt(100),
	}, Deps{
		Store:    lostRaceStore{h.store},
		Gateways: h.gw,
		Metrics:  h.metrics,
		Cache:    cache.NewMemory(),
		Notifier: h.notifier,
		Now:      h.clock.Now,
	})

	res, err := svc.Create(ctx, CreateRequest{
		OwnerID: 1, Slot: 3, DurationKind: slotbookings.DurationCustom, Days: 4,
		Provider: slotbookings.ProviderKhalti, Content: content("loser"),
	})
	require.ErrorIs(t, err, ErrConflict)
	requireCode(t, err, CodeSlotOccupied)
	assert.Nil(t, res)
	assert.Zero(t, h.gw.orderCount())

	_, err = h.svc.OwnAdvertisement(ctx, 1)
	requireCode(t, err, CodeAdvertisementNotFound)
}

func TestSweepIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.book(t, 1, 2, slotbookings.ProviderKhalti)
	h.clock.Advance(31 * time.Minute)

	first, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, first.Expired)
	assert.Equal(t, int64(1), first.Canceled)
	require.Len(t, first.Holds, 1)

	second, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Expired)
	assert.Zero(t, second.Canceled)
	assert.Empty(t, second.Holds)
}

func TestSweptHoldNotifiesOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)
	h.book(t, 2, 8, slotbookings.ProviderFree)
	h.clock.Advance(31 * time.Minute)

	swept, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, swept.Holds, 1)
	assert.Equal(t, slotbookings.StatusCanceled, swept.Holds[0].Status)
	assert.Equal(t, []int64{res.Booking.ID}, h.notifier.canceled)

	_, err = h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, h.notifier.canceled, 1)
}

func TestRolledBackSweepDoesNotNotify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	hold := h.book(t, 1, 2, slotbookings.ProviderKhalti)
	h.book(t, 2, 8, slotbookings.ProviderFree)
	h.clock.Advance(31 * time.Minute)

	// the sweep inside this create is rolled back with the conflict
	_, err := h.svc.Create(ctx, CreateRequest{
		OwnerID: 3, Slot: 8, DurationKind: slotbookings.DurationCustom, Days: 3,
		Provider: slotbookings.ProviderFree, Content: content("late"),
	})
	requireCode(t, err, CodeSlotOccupied)
	assert.Empty(t, h.notifier.canceled)
	assert.Equal(t, slotbookings.StatusPending, h.booking(t, hold.Booking.ID).Status)
}

func TestHoldWindowBoundary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)

	h.clock.Advance(29 * time.Minute)
	_, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, slotbookings.StatusPending, h.booking(t, res.Booking.ID).Status)

	_, err = h.svc.Create(ctx, CreateRequest{
		OwnerID: 2, Slot: 2, DurationKind: slotbookings.DurationCustom, Days: 1,
		Provider: slotbookings.ProviderEsewa, Content: content("second"),
	})
	requireCode(t, err, CodeSlotOccupied)

	h.clock.Advance(2 * time.Minute)
	second := h.book(t, 2, 2, slotbookings.ProviderEsewa)

	first := h.booking(t, res.Booking.ID)
	assert.Equal(t, slotbookings.StatusCanceled, first.Status)
	require.NotNil(t, first.CancelReason)
	assert.Equal(t, slotbookings.ReasonHoldExpired, *first.CancelReason)
	assert.Equal(t, 2, second.Booking.Slot)
}

func TestFreeRequestIsNotAHold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 7, slotbookings.ProviderFree)
	h.clock.Advance(2 * time.Hour)

	swept, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept.Canceled)
	assert.Equal(t, slotbookings.StatusPending, h.booking(t, res.Booking.ID).Status)

	_, err = h.svc.Create(ctx, CreateRequest{
		OwnerID: 2, Slot: 7, DurationKind: slotbookings.DurationCustom, Days: 1,
		Content: content("late"),
	})
	requireCode(t, err, CodeSlotOccupied)
}

func TestPaidBookingAwaitingReviewSurvivesSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 4, slotbookings.ProviderKhalti)
	out, err := h.svc.ConfirmPayment(ctx, res.Booking.ID, payments.Verification{Success: true, State: "Completed"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePendingReview, out.Outcome)

	h.clock.Advance(3 * time.Hour)
	_, err = h.svc.Sweep(ctx)
	require.NoError(t, err)

	b := h.booking(t, res.Booking.ID)
	assert.Equal(t, slotbookings.StatusPending, b.Status)
	assert.NotNil(t, b.PaidAt)
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)
	h.approve(t, res.Advertisement.ID)

	ok := payments.Verification{Success: true, State: "Completed"}
	first, err := h.svc.ConfirmPayment(ctx, res.Booking.ID, ok)
	require.NoError(t, err)
	assert.Equal(t, OutcomeActive, first.Outcome)

	h.clock.Advance(time.Minute)
	second, err := h.svc.ConfirmPayment(ctx, res.Booking.ID, ok)
	require.NoError(t, err)
	assert.Equal(t, OutcomeActive, second.Outcome)
	assert.Equal(t, first.Booking.EndsAt, second.Booking.EndsAt)
	assert.Equal(t, first.Booking.PaidAt, second.Booking.PaidAt)
	assert.Len(t, h.notifier.activated, 1)
}

func TestConfirmPaymentNotCompleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)
	_, err := h.svc.ConfirmPayment(ctx, res.Booking.ID, payments.Verification{State: "Pending"})
	require.ErrorIs(t, err, ErrPaymentNotCompleted)

	b := h.booking(t, res.Booking.ID)
	assert.Equal(t, slotbookings.StatusPending, b.Status)
	assert.Nil(t, b.PaidAt)
	require.NotNil(t, b.ProviderStatus)
	assert.Equal(t, "Pending", *b.ProviderStatus)
}

func TestLatePaymentOnClosedBookingIsLogged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)
	h.clock.Advance(31 * time.Minute)
	_, err := h.svc.Sweep(ctx)
	require.NoError(t, err)

	_, err = h.svc.ConfirmPayment(ctx, res.Booking.ID, payments.Verification{Success: true, State: "Completed"})
	require.ErrorIs(t, err, ErrConflict)
	requireCode(t, err, CodeBookingClosed)

	logs, err := h.svc.PaymentLogs(ctx, res.Booking.ID)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "error", logs[len(logs)-1].LogType)
	assert.Contains(t, string(logs[len(logs)-1].Payload), "late_payment")
}

func TestBookingPriceIsFrozen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 3, slotbookings.ProviderEsewa)
	assert.True(t, decimal.NewFromInt(700).Equal(res.Booking.TotalPrice))

	require.NoError(t, h.svc.SetPriceCell(ctx, 3, 7, ptr(decimal.NewFromInt(9999))))
	h.approve(t, res.Advertisement.ID)
	out, err := h.svc.ConfirmPayment(ctx, res.Booking.ID, payments.Verification{Success: true, State: "COMPLETE"})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(700).Equal(out.Booking.TotalPrice))
	assert.True(t, decimal.NewFromInt(700).Equal(h.booking(t, res.Booking.ID).TotalPrice))
}

func TestRejectionFreesSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)

	_, err := h.svc.Moderate(ctx, res.Advertisement.ID, advertisements.StatusRejected, "")
	requireCode(t, err, CodeReasonRequired)

	mod, err := h.svc.Moderate(ctx, res.Advertisement.ID, advertisements.StatusRejected, "misleading banner")
	require.NoError(t, err)
	require.Len(t, mod.Canceled, 1)
	assert.Equal(t, slotbookings.ReasonAdRejected, *mod.Canceled[0].CancelReason)
	assert.Equal(t, []int64{res.Advertisement.ID}, h.notifier.rejected)

	other := h.book(t, 2, 2, slotbookings.ProviderKhalti)
	assert.Equal(t, slotbookings.StatusPending, other.Booking.Status)
}

func TestMonthlyBookingHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.SetPriceCell(ctx, 3, 30, ptr(decimal.RequireFromString("45.00"))))

	res, err := h.svc.Create(ctx, CreateRequest{
		OwnerID:      1,
		Slot:         3,
		DurationKind: slotbookings.DurationMonthly,
		Days:         5,
		Provider:     slotbookings.ProviderEsewa,
		Content:      content("monthly"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Payment)

	b := res.Booking
	assert.Equal(t, 30, b.Days)
	assert.Equal(t, "45", b.TotalPrice.String())
	assert.Equal(t, "1.5", b.DailyPrice.String())
	assert.Equal(t, "98.5", b.DiscountPct.String())
	assert.Equal(t, "ext-1", *b.ProviderRef)

	h.approve(t, res.Advertisement.ID)
	out, err := h.svc.Confirm(ctx, b.ID, 1, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActive, out.Outcome)
	assert.Equal(t, h.clock.Now().Add(30*24*time.Hour), *out.Booking.EndsAt)
}

func TestPaidThenApproved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 5, slotbookings.ProviderKhalti)
	out, err := h.svc.ConfirmPayment(ctx, res.Booking.ID, payments.Verification{Success: true, State: "Completed"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePendingReview, out.Outcome)

	h.clock.Advance(6 * time.Hour)
	mod := h.approve(t, res.Advertisement.ID)
	require.NotNil(t, mod.Activated)
	assert.Equal(t, res.Booking.ID, mod.Activated.ID)

	b := h.booking(t, res.Booking.ID)
	assert.Equal(t, slotbookings.StatusActive, b.Status)
	assert.Equal(t, h.clock.Now(), *b.StartsAt)
	assert.Equal(t, h.clock.Now().Add(7*24*time.Hour), *b.EndsAt)
}

func TestResubmissionResetsApproval(t *testing.T) {
	h := newHarness(t)

	first := h.book(t, 1, 7, "")
	h.approve(t, first.Advertisement.ID)

	same := h.book(t, 1, 8, "")
	assert.Equal(t, advertisements.StatusApproved, same.Advertisement.Status)

	changed, err := h.svc.Create(context.Background(), CreateRequest{
		OwnerID: 1, Slot: 9, DurationKind: slotbookings.DurationCustom, Days: 1,
		Content: advertisements.Content{ServerName: "renamed", ServerAddress: "owner1.example.net:25565"},
	})
	require.NoError(t, err)
	assert.Equal(t, advertisements.StatusPendingReview, changed.Advertisement.Status)
	assert.Equal(t, first.Advertisement.ID, changed.Advertisement.ID)
}

func TestOverrideBlocksBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 8, "")
	h.approve(t, res.Advertisement.ID)

	out, err := h.svc.SetOverride(ctx, overridesFor(2, res.Advertisement.ID))
	require.NoError(t, err)
	assert.Empty(t, out.Shadowed)

	_, err = h.svc.Create(ctx, CreateRequest{
		OwnerID: 2, Slot: 2, DurationKind: slotbookings.DurationCustom, Days: 1,
		Provider: slotbookings.ProviderKhalti, Content: content("blocked"),
	})
	requireCode(t, err, CodeSlotOccupiedByOverride)

	require.NoError(t, h.svc.RemoveOverride(ctx, 2))
	h.book(t, 2, 2, slotbookings.ProviderKhalti)

	requireCode(t, h.svc.RemoveOverride(ctx, 2), CodeOverrideNotFound)
}

func TestOverrideReportsShadowedBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	holder := h.book(t, 1, 2, slotbookings.ProviderKhalti)
	pinned := h.book(t, 2, 9, "")

	_, err := h.svc.SetOverride(ctx, overridesFor(2, pinned.Advertisement.ID))
	requireCode(t, err, CodeAdNotApproved)

	h.approve(t, pinned.Advertisement.ID)
	out, err := h.svc.SetOverride(ctx, overridesFor(2, pinned.Advertisement.ID))
	require.NoError(t, err)
	assert.Equal(t, []int64{holder.Booking.ID}, out.Shadowed)
	assert.Equal(t, slotbookings.StatusPending, h.booking(t, holder.Booking.ID).Status)
}

func TestProjectionOrderingAndDanglingOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.book(t, 1, 6, "")
	h.approve(t, a.Advertisement.ID)

	b := h.book(t, 2, 1, slotbookings.ProviderKhalti)
	h.approve(t, b.Advertisement.ID)
	_, err := h.svc.ConfirmPayment(ctx, b.Booking.ID, payments.Verification{Success: true, State: "Completed"})
	require.NoError(t, err)

	_, err = h.svc.SetOverride(ctx, overridesFor(4, a.Advertisement.ID))
	require.NoError(t, err)

	entries, err := h.svc.ActiveProjection(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, 1, entries[0].Slot)
	assert.True(t, entries[0].VIP)
	assert.Equal(t, SourceBooking, entries[0].Source)
	assert.Equal(t, b.Booking.ID, *entries[0].BookingID)

	assert.Equal(t, 4, entries[1].Slot)
	assert.Equal(t, SourceOverride, entries[1].Source)
	assert.Nil(t, entries[1].BookingID)

	assert.Equal(t, 6, entries[2].Slot)
	assert.Equal(t, "owner1", entries[2].Advertisement.ServerName)

	// served from cache until a transition invalidates it
	again, err := h.svc.ActiveProjection(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 3)

	_, err = h.svc.Moderate(ctx, a.Advertisement.ID, advertisements.StatusPendingReview, "")
	require.NoError(t, err)

	entries, err = h.svc.ActiveProjection(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Slot)

	_, err = h.svc.Create(ctx, CreateRequest{
		OwnerID: 3, Slot: 4, DurationKind: slotbookings.DurationCustom, Days: 1,
		Provider: slotbookings.ProviderKhalti, Content: content("owner3"),
	})
	requireCode(t, err, CodeSlotOccupiedByOverride)
}

func TestProjectionDropsEndedBookings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 7, "")
	h.approve(t, res.Advertisement.ID)

	entries, err := h.svc.ActiveProjection(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	h.clock.Advance(7*24*time.Hour + time.Second)
	entries, err = h.svc.ActiveProjection(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	swept, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept.Expired)
	assert.Equal(t, slotbookings.StatusExpired, h.booking(t, res.Booking.ID).Status)
}

func TestProviderFailureLeavesBookingPending(t *testing.T) {
	h := newHarness(t)
	h.gw.createErr = fmt.Errorf("%w: KHALTI create order: %w", payments.ErrProviderUnavailable, context.DeadlineExceeded)

	res, err := h.svc.Create(context.Background(), CreateRequest{
		OwnerID: 1, Slot: 2, DurationKind: slotbookings.DurationCustom, Days: 2,
		Provider: slotbookings.ProviderKhalti, Content: content("timeout"),
	})
	require.ErrorIs(t, err, ErrPaymentProvider)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, res)

	b := h.booking(t, res.Booking.ID)
	assert.Equal(t, slotbookings.StatusPending, b.Status)
	assert.Nil(t, b.ProviderRef)

	h.gw.createErr = nil
	po, err := h.svc.StartPayment(context.Background(), b.ID, 1, payments.Customer{})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("ext-%d", b.ID), po.ExternalID)
}

func TestStartPaymentGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)

	_, err := h.svc.StartPayment(ctx, res.Booking.ID, 99, payments.Customer{})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = h.svc.ConfirmPayment(ctx, res.Booking.ID, payments.Verification{Success: true})
	require.NoError(t, err)
	_, err = h.svc.StartPayment(ctx, res.Booking.ID, 1, payments.Customer{})
	requireCode(t, err, CodeAlreadyPaid)

	free := h.book(t, 2, 9, "")
	_, err = h.svc.StartPayment(ctx, free.Booking.ID, 2, payments.Customer{})
	requireCode(t, err, CodePaymentNotApplicable)
}

func TestConfirmByReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)
	ref := *res.Booking.ProviderRef

	_, err := h.svc.Confirm(ctx, res.Booking.ID, 1, "forged")
	requireCode(t, err, CodeReferenceMismatch)

	_, err = h.svc.ConfirmByReference(ctx, payments.Esewa, ref)
	require.ErrorIs(t, err, ErrNotFound)

	out, err := h.svc.ConfirmByReference(ctx, payments.Khalti, ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomePendingReview, out.Outcome)

	h.gw.confirmErr = errors.New("must not be called again")
	again, err := h.svc.ConfirmByReference(ctx, payments.Khalti, ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomePendingReview, again.Outcome)
}

func TestRestartAppliesPaidOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)
	ref := *res.Booking.ProviderRef

	_, err := h.svc.StartPayment(ctx, res.Booking.ID, 1, payments.Customer{})
	requireCode(t, err, CodeAlreadyPaid)
	assert.Equal(t, 1, h.gw.orderCount())

	b := h.booking(t, res.Booking.ID)
	require.NotNil(t, b.PaidAt)
	assert.Equal(t, ref, *b.ProviderRef)

	// the provider's late callback for the same order still resolves
	out, err := h.svc.ConfirmByReference(ctx, payments.Khalti, ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomePendingReview, out.Outcome)

	h.clock.Advance(31 * time.Minute)
	_, err = h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, slotbookings.StatusPending, h.booking(t, b.ID).Status)
	assert.Empty(t, h.notifier.canceled)
}

func TestRestartWithOpenOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)
	ref := *res.Booking.ProviderRef
	h.gw.verdict = payments.Verification{State: "Pending"}

	_, err := h.svc.StartPayment(ctx, res.Booking.ID, 1, payments.Customer{})
	require.ErrorIs(t, err, ErrConflict)
	requireCode(t, err, CodePaymentInProgress)

	h.gw.resumable = true
	po, err := h.svc.StartPayment(ctx, res.Booking.ID, 1, payments.Customer{})
	require.NoError(t, err)
	assert.Equal(t, ref, po.ExternalID)
	assert.NotEmpty(t, po.RedirectURL)

	assert.Equal(t, 1, h.gw.orderCount())
	b := h.booking(t, res.Booking.ID)
	assert.Equal(t, ref, *b.ProviderRef)
	assert.Nil(t, b.PaidAt)
}

func TestRestartReplacesClosedOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)
	old := *res.Booking.ProviderRef
	h.gw.verdicts = map[string]payments.Verification{
		old: {Terminal: true, State: "Expired"},
	}

	po, err := h.svc.StartPayment(ctx, res.Booking.ID, 1, payments.Customer{})
	require.NoError(t, err)
	assert.NotEqual(t, old, po.ExternalID)
	assert.Equal(t, 2, h.gw.orderCount())

	b := h.booking(t, res.Booking.ID)
	assert.Equal(t, po.ExternalID, *b.ProviderRef)
	assert.Nil(t, b.PaidAt)

	out, err := h.svc.ConfirmByReference(ctx, payments.Khalti, po.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, OutcomePendingReview, out.Outcome)
}

func TestRestartLookupFailureKeepsOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)
	ref := *res.Booking.ProviderRef
	h.gw.confirmErr = fmt.Errorf("%w: KHALTI lookup: %w", payments.ErrProviderUnavailable, context.DeadlineExceeded)

	_, err := h.svc.StartPayment(ctx, res.Booking.ID, 1, payments.Customer{})
	require.ErrorIs(t, err, ErrPaymentProvider)
	assert.Equal(t, 1, h.gw.orderCount())
	assert.Equal(t, ref, *h.booking(t, res.Booking.ID).ProviderRef)
}

func TestRedirectIsAuditedBeforeConfirmation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)
	ref := *res.Booking.ProviderRef

	b, err := h.svc.BookingByReference(ctx, payments.Khalti, ref)
	require.NoError(t, err)
	require.Equal(t, res.Booking.ID, b.ID)

	h.svc.RecordRedirect(ctx, b.ID, map[string]string{"pidx": ref, "status": "Completed"})

	logs, err := h.svc.PaymentLogs(ctx, b.ID)
	require.NoError(t, err)

	var types []string
	for _, l := range logs {
		types = append(types, l.LogType)
	}
	assert.Contains(t, types, paymentlogs.TypeRequest)
	assert.Contains(t, types, paymentlogs.TypeRedirect)
}

func TestAdminActivateAndCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 3, slotbookings.ProviderKhalti)
	_, err := h.svc.AdminActivate(ctx, res.Booking.ID)
	requireCode(t, err, CodePaymentRequired)

	_, err = h.svc.ConfirmPayment(ctx, res.Booking.ID, payments.Verification{Success: true})
	require.NoError(t, err)
	_, err = h.svc.AdminActivate(ctx, res.Booking.ID)
	requireCode(t, err, CodeAdNotApproved)

	_, err = h.svc.Moderate(ctx, res.Advertisement.ID, advertisements.StatusApproved, "")
	require.NoError(t, err)
	b := h.booking(t, res.Booking.ID)
	require.Equal(t, slotbookings.StatusActive, b.Status)

	_, err = h.svc.AdminActivate(ctx, res.Booking.ID)
	requireCode(t, err, CodeBookingClosed)

	canceled, err := h.svc.AdminCancel(ctx, res.Booking.ID, "")
	require.NoError(t, err)
	assert.Equal(t, slotbookings.ReasonAdmin, *canceled.CancelReason)
	assert.Equal(t, []int64{res.Booking.ID}, h.notifier.canceled)

	_, err = h.svc.AdminCancel(ctx, res.Booking.ID, "again")
	requireCode(t, err, CodeBookingClosed)
}

func TestDeleteAdvertisement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.book(t, 1, 2, slotbookings.ProviderKhalti)
	del, err := h.svc.DeleteAdvertisement(ctx, res.Advertisement.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Advertisement.ID, del.Advertisement.ID)
	require.Len(t, del.Canceled, 1)
	assert.Equal(t, slotbookings.ReasonAdDeleted, *del.Canceled[0].CancelReason)

	_, err = h.svc.OwnAdvertisement(ctx, 1)
	requireCode(t, err, CodeAdvertisementNotFound)

	h.book(t, 2, 2, slotbookings.ProviderKhalti)
}

func TestAvailableSlots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.book(t, 1, 2, slotbookings.ProviderKhalti)
	require.NoError(t, h.svc.SetPriceCell(ctx, 3, 30, ptr(decimal.NewFromInt(2400))))

	slots, err := h.svc.AvailableSlots(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, slots, 10)

	assert.True(t, slots[0].VIP)
	assert.False(t, slots[1].Available)
	assert.Equal(t, UnavailableOccupied, slots[1].Reason)
	assert.Equal(t, "2400", slots[2].Quote.TotalPrice.String())
	assert.Equal(t, TierFree, slots[6].Tier)
	assert.Nil(t, slots[6].Quote)
	assert.True(t, slots[6].Available)
}

func overridesFor(slot int, adID int64) overrides.Override {
	return overrides.Override{Slot: slot, AdvertisementID: adID}
}

func ptr[T any](v T) *T { return &v }
