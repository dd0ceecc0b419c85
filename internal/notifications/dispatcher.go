package notifications

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"adslots/internal/domain/advertisements"
	"adslots/internal/domain/slotbookings"
	"adslots/internal/domain/users"
	"adslots/internal/mailer"

	"github.com/9ssi7/exponent"
	"go.uber.org/zap"
)

const (
	sendTimeout = 10 * time.Second
	screen      = "my-ads-screen" // client does router.push(`/${data.screen}`)
)

type TokenStore interface {
	GetTokensByUserIDs(ctx context.Context, userIDs []int64) (map[int64][]string, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
}

// Dispatcher tells advertisement owners about booking transitions by push
// and email. Every send runs in the background; Wait blocks until they are
// done.
type Dispatcher struct {
	push   PushSender
	mail   mailer.Client
	tokens TokenStore
	users  UserStore
	logger *zap.SugaredLogger
	wg     sync.WaitGroup
}

// NewDispatcher wires the channels. push and mail may be nil to disable
// that channel.
func NewDispatcher(push PushSender, mail mailer.Client, tokens TokenStore, users UserStore, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{push: push, mail: mail, tokens: tokens, users: users, logger: logger}
}

func (d *Dispatcher) Wait() { d.wg.Wait() }

// async runs fn detached from the request that triggered it.
func (d *Dispatcher) async(event string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Errorw("notification panicked", "event", event, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			d.logger.Warnw("notification failed", "event", event, "error", err)
		}
	}()
}

func (d *Dispatcher) BookingActivated(_ context.Context, b slotbookings.Booking) {
	d.async("booking_activated", func(ctx context.Context) error {
		until := ""
		if b.EndsAt != nil {
			until = b.EndsAt.Format("2006-01-02 15:04 MST")
		}
		pushErr := d.sendPush(ctx, b.OwnerID, "Your ad is live",
			fmt.Sprintf("Your advertisement is showing in slot %d until %s", b.Slot, until),
			map[string]string{"event": "ACTIVATED", "bookingId": strconv.FormatInt(b.ID, 10)},
		)
		mailErr := d.sendMail(ctx, b.OwnerID, mailer.BookingActivatedTemplate, func(u *users.User) any {
			return mailer.BookingData{
				Username:  u.DisplayName(),
				BookingID: b.ID,
				Slot:      b.Slot,
				VIP:       b.Slot == 1,
				EndsAt:    until,
			}
		})
		return firstErr(pushErr, mailErr)
	})
}

func (d *Dispatcher) BookingCanceled(_ context.Context, b slotbookings.Booking) {
	d.async("booking_canceled", func(ctx context.Context) error {
		reason := ""
		if b.CancelReason != nil {
			reason = *b.CancelReason
		}
		pushErr := d.sendPush(ctx, b.OwnerID, "Booking canceled",
			fmt.Sprintf("Your booking for slot %d was canceled", b.Slot),
			map[string]string{"event": "CANCELED", "bookingId": strconv.FormatInt(b.ID, 10), "reason": reason},
		)
		mailErr := d.sendMail(ctx, b.OwnerID, mailer.BookingCanceledTemplate, func(u *users.User) any {
			return mailer.BookingData{
				Username:  u.DisplayName(),
				BookingID: b.ID,
				Slot:      b.Slot,
				Reason:    reason,
				Paid:      b.PaidAt != nil,
			}
		})
		return firstErr(pushErr, mailErr)
	})
}

func (d *Dispatcher) AdvertisementRejected(_ context.Context, ad advertisements.Advertisement) {
	d.async("advertisement_rejected", func(ctx context.Context) error {
		reason := ""
		if ad.RejectionReason != nil {
			reason = *ad.RejectionReason
		}
		pushErr := d.sendPush(ctx, ad.OwnerID, "Advertisement needs changes", reason,
			map[string]string{"event": "REJECTED", "advertisementId": strconv.FormatInt(ad.ID, 10)},
		)
		mailErr := d.sendMail(ctx, ad.OwnerID, mailer.AdvertisementRejectedTemplate, func(u *users.User) any {
			return mailer.RejectionData{
				Username:   u.DisplayName(),
				ServerName: ad.Content.ServerName,
				Reason:     reason,
			}
		})
		return firstErr(pushErr, mailErr)
	})
}

func (d *Dispatcher) sendPush(ctx context.Context, userID int64, title, body string, data map[string]string) error {
	if d.push == nil || d.tokens == nil {
		return nil
	}

	tokensMap, err := d.tokens.GetTokensByUserIDs(ctx, []int64{userID})
	if err != nil {
		return err
	}
	tokens := dedupe(tokensMap[userID])
	if len(tokens) == 0 {
		return nil
	}

	data["type"] = "slot_booking"
	data["screen"] = screen

	msgs := make([]*exponent.Message, 0, len(tokens))
	for _, t := range tokens {
		token := exponent.Token(t)
		msgs = append(msgs, &exponent.Message{
			To:    []*exponent.Token{&token},
			Title: title,
			Body:  body,
			Data:  data,
		})
	}
	_, err = d.push.Publish(ctx, msgs)
	return err
}

func (d *Dispatcher) sendMail(ctx context.Context, userID int64, templateFile string, data func(u *users.User) any) error {
	if d.mail == nil || d.users == nil {
		return nil
	}

	u, err := d.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Email == "" {
		return nil
	}
	_, err = d.mail.Send(templateFile, u.DisplayName(), u.Email, data(u))
	return err
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok || t == "" {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
