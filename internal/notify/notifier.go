// Package notify formats availability alerts and delivers them to the chat
// with an explicit retry policy.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/yourneighborhoodchef/pickupwatch/internal/telegram"
)

// Sender delivers one chat message.
type Sender interface {
	SendMessage(ctx context.Context, text string, opts telegram.SendOptions) (telegram.Message, error)
}

// Pinner pins a delivered message.
type Pinner interface {
	PinChatMessage(ctx context.Context, id telegram.MessageID, silent bool) error
}

// RetryPolicy controls how a failing call is retried. A nil Retryable
// retries every error.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, Delay: 5 * time.Second}
}

// DefaultPinPolicy is the retry policy used for pinning.
func DefaultPinPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Second}
}

const DefaultCooldown = 3 * time.Second

// NotifyError is returned once the retry budget is spent or a
// non-retryable error occurs.
type NotifyError struct {
	Attempts int
	Err      error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notification failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// Notifier sends alerts through a Sender.
type Notifier struct {
	sender    Sender
	pinner    Pinner
	policy    RetryPolicy
	pinPolicy RetryPolicy
	cooldown  time.Duration
	defaults  telegram.SendOptions
	sleep     func(context.Context, time.Duration) error
	log       logrus.FieldLogger
}

type Option func(*Notifier)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(n *Notifier) { n.policy = p }
}

// WithCooldown sets the pause after a successful send.
func WithCooldown(d time.Duration) Option {
	return func(n *Notifier) { n.cooldown = d }
}

// WithSendOptions sets the options used by Notify.
func WithSendOptions(opts telegram.SendOptions) Option {
	return func(n *Notifier) { n.defaults = opts }
}

// WithPinner enables Pin.
func WithPinner(p Pinner, policy RetryPolicy) Option {
	return func(n *Notifier) {
		n.pinner = p
		n.pinPolicy = policy
	}
}

// WithSleeper replaces the cooldown sleep, mostly for tests.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(n *Notifier) { n.sleep = sleep }
}

func New(sender Sender, log logrus.FieldLogger, opts ...Option) *Notifier {
	n := &Notifier{
		sender:    sender,
		policy:    DefaultRetryPolicy(),
		pinPolicy: DefaultPinPolicy(),
		cooldown:  DefaultCooldown,
		sleep:     Sleep,
		log:       log,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Notify sends text with the notifier's default options.
func (n *Notifier) Notify(ctx context.Context, text string) (telegram.MessageID, error) {
	return n.Send(ctx, text, n.defaults)
}

// Send delivers text, retrying per the policy, then waits out the cooldown.
func (n *Notifier) Send(ctx context.Context, text string, opts telegram.SendOptions) (telegram.MessageID, error) {
	n.log.Infof("Sending: %s", strings.ReplaceAll(text, "\n", " "))

	msg, attempts, err := retry(ctx, n.policy, n.log, "send message", func() (telegram.Message, error) {
		return n.sender.SendMessage(ctx, text, opts)
	})
	if err != nil {
		n.log.WithError(err).Errorf("Failed to send message %q", text)
		return 0, &NotifyError{Attempts: attempts, Err: err}
	}

	n.log.WithFields(logrus.Fields{
		"message_id":           msg.MessageID,
		"disable_notification": opts.DisableNotification,
		"attempts":             attempts,
	}).Info("Message sent")

	// The message is out; a cancelled cooldown does not undo that.
	_ = n.sleep(ctx, n.cooldown)
	return msg.MessageID, nil
}

// Pin pins a sent message. It is a no-op without a Pinner.
func (n *Notifier) Pin(ctx context.Context, id telegram.MessageID) error {
	if n.pinner == nil {
		return nil
	}
	_, attempts, err := retry(ctx, n.pinPolicy, n.log, "pin message", func() (struct{}, error) {
		return struct{}{}, n.pinner.PinChatMessage(ctx, id, true)
	})
	if err != nil {
		return &NotifyError{Attempts: attempts, Err: err}
	}
	return nil
}

func retry[T any](ctx context.Context, p RetryPolicy, log logrus.FieldLogger, what string, op func() (T, error)) (T, int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempts := 0
	operation := func() (T, error) {
		attempts++
		res, err := op()
		if err == nil {
			return res, nil
		}
		log.WithError(err).Warnf("[Retry] %s failed, attempt %d/%d", what, attempts, maxAttempts)
		if p.Retryable != nil && !p.Retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(time.Duration(maxAttempts)*p.Delay+10*time.Minute),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return res, attempts, err
}
