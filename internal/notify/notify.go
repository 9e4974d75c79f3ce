// Package notify manages push subscriptions and dispatches new-mail
// notifications. Subscriptions outlive sessions; they are persisted at
// notifications/{addressKey} in the document store. Delivery is handed to a
// Pusher collaborator and is strictly best effort: a failed or throttled
// push is logged and never surfaces to the sender.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.io/infrasutra/bharatmail/internal/docstore"
	"github.io/infrasutra/bharatmail/internal/mailtime"
)

// Pusher delivers an encoded notification payload to an address.
type Pusher interface {
	Push(ctx context.Context, address string, payload []byte) error
}

// Subscription is the stored per-account push state. Unsubscribing disables
// it but keeps the endpoint blob so re-enabling needs no re-registration.
type Subscription struct {
	Subscription json.RawMessage `json:"subscription,omitempty"`
	Enabled      bool            `json:"enabled"`
	CreatedAt    string          `json:"created_at,omitempty"`
	UpdatedAt    string          `json:"updated_at,omitempty"`
}

// Payload is the notification body handed to the pusher; the shape matches
// what the service worker expects.
type Payload struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	MailID string `json:"mailId"`
	URL    string `json:"url"`
}

type Dispatcher struct {
	store   docstore.Store
	pusher  Pusher
	logger  *slog.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

func NewDispatcher(store docstore.Store, pusher Pusher, logger *slog.Logger, pushRate float64, pushBurst int) *Dispatcher {
	return &Dispatcher{
		store:   store,
		pusher:  pusher,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(pushRate), pushBurst),
		now:     time.Now,
	}
}

// Subscribe upserts an enabled subscription for the account.
func (d *Dispatcher) Subscribe(ctx context.Context, account string, blob json.RawMessage) error {
	now := mailtime.Format(d.now())
	sub := Subscription{
		Subscription: blob,
		Enabled:      true,
		UpdatedAt:    now,
	}
	existing, err := d.load(ctx, account)
	switch {
	case err == nil && existing.CreatedAt != "":
		sub.CreatedAt = existing.CreatedAt
	case err == nil || errors.Is(err, docstore.ErrNotFound):
		sub.CreatedAt = now
	default:
		return err
	}
	if err := d.store.Set(ctx, docstore.NotificationsPath(account), sub); err != nil {
		return fmt.Errorf("store subscription: %w", err)
	}
	return nil
}

// Unsubscribe disables the subscription, retaining the endpoint blob.
func (d *Dispatcher) Unsubscribe(ctx context.Context, account string) error {
	if err := d.store.Update(ctx, docstore.NotificationsPath(account), map[string]any{
		"enabled":    false,
		"updated_at": mailtime.Format(d.now()),
	}); err != nil {
		return fmt.Errorf("disable subscription: %w", err)
	}
	return nil
}

// Status reports whether the account has a stored subscription and whether
// it is enabled.
func (d *Dispatcher) Status(ctx context.Context, account string) (enabled, subscribed bool, err error) {
	sub, err := d.load(ctx, account)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return sub.Enabled, len(sub.Subscription) > 0, nil
}

// NotifyNewMail pushes a new-mail notification to the receiver. A missing or
// disabled subscription is a silent no-op; delivery and throttling failures
// are logged and swallowed so the send path never fails on them.
func (d *Dispatcher) NotifyNewMail(ctx context.Context, receiver, mailID, sender, subject string) {
	sub, err := d.load(ctx, receiver)
	if errors.Is(err, docstore.ErrNotFound) {
		return
	}
	if err != nil {
		d.logger.Warn("load subscription failed", "receiver", receiver, "error", err)
		return
	}
	if !sub.Enabled {
		return
	}
	if !d.limiter.Allow() {
		d.logger.Warn("push delivery throttled", "receiver", receiver, "mail_id", mailID)
		return
	}
	payload, err := json.Marshal(Payload{
		Title:  "New email from " + sender,
		Body:   subject,
		MailID: mailID,
		URL:    "/inbox",
	})
	if err != nil {
		d.logger.Warn("encode notification failed", "receiver", receiver, "error", err)
		return
	}
	if err := d.pusher.Push(ctx, receiver, payload); err != nil {
		d.logger.Warn("push delivery failed", "receiver", receiver, "mail_id", mailID, "error", err)
	}
}

func (d *Dispatcher) load(ctx context.Context, account string) (Subscription, error) {
	raw, err := d.store.Get(ctx, docstore.NotificationsPath(account))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Subscription{}, err
		}
		return Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	var sub Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return Subscription{}, fmt.Errorf("decode subscription: %w", err)
	}
	return sub, nil
}
