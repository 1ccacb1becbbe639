package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourneighborhoodchef/pickupwatch/internal/client"
	"github.com/yourneighborhoodchef/pickupwatch/internal/metrics"
	"github.com/yourneighborhoodchef/pickupwatch/internal/notify"
	"github.com/yourneighborhoodchef/pickupwatch/internal/pickup"
	"github.com/yourneighborhoodchef/pickupwatch/internal/telegram"
)

type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

type Notifier interface {
	Notify(ctx context.Context, text string) (telegram.MessageID, error)
}

// Pinner pins the alert announcing new stock.
type Pinner interface {
	Pin(ctx context.Context, id telegram.MessageID) error
}

// Archiver stores debug copies of what a cycle saw.
type Archiver interface {
	WriteJSON(raw []byte, info, extra string) (string, error)
	WriteText(text, info, extra string) (string, error)
}

type Config struct {
	Part       string
	Location   string
	MinDelay   time.Duration
	MaxDelay   time.Duration
	ErrorDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinDelay:   50 * time.Second,
		MaxDelay:   70 * time.Second,
		ErrorDelay: 60 * time.Second,
	}
}

// Monitor runs the fetch, validate, extract, compare, notify, sleep cycle on
// a single goroutine.
type Monitor struct {
	cfg      Config
	fetcher  Fetcher
	notifier Notifier
	pinner   Pinner
	archive  Archiver
	metrics  *metrics.Metrics
	status   logrus.FieldLogger
	log      logrus.FieldLogger

	state State
	rng   *rand.Rand
	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

type Option func(*Monitor)

func WithPinner(p Pinner) Option { return func(m *Monitor) { m.pinner = p } }

func WithArchive(a Archiver) Option { return func(m *Monitor) { m.archive = a } }

func WithMetrics(mt *metrics.Metrics) Option { return func(m *Monitor) { m.metrics = mt } }

// WithStatus publishes one JSON status line per cycle.
func WithStatus(status logrus.FieldLogger) Option { return func(m *Monitor) { m.status = status } }

func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(m *Monitor) { m.sleep = sleep }
}

func WithRand(rng *rand.Rand) Option { return func(m *Monitor) { m.rng = rng } }

func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

func New(cfg Config, fetcher Fetcher, notifier Notifier, log logrus.FieldLogger, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:      cfg,
		fetcher:  fetcher,
		notifier: notifier,
		log:      log.WithFields(logrus.Fields{"part": cfg.Part, "location": cfg.Location}),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    notify.Sleep,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.MaxDelay < m.cfg.MinDelay {
		m.cfg.MaxDelay = m.cfg.MinDelay
	}
	return m
}

// Previous returns the snapshot the next cycle compares against.
func (m *Monitor) Previous() pickup.Snapshot { return m.state.Previous() }

// Run loops until ctx is cancelled. It only returns nil: every cycle failure
// is contained and followed by the error delay.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.WithFields(logrus.Fields{
		"min_delay":   m.cfg.MinDelay,
		"max_delay":   m.cfg.MaxDelay,
		"error_delay": m.cfg.ErrorDelay,
	}).Info("Starting pickup monitor")

	for {
		if ctx.Err() != nil {
			m.log.Info("Interrupted. Exiting ...")
			return nil
		}

		res := m.RunCycle(ctx)
		if ctx.Err() != nil {
			m.log.Info("Interrupted. Exiting ...")
			return nil
		}

		delay := m.NextDelay(res)
		m.log.Debugf("Sleeping %s", delay.Round(time.Second))
		if err := m.sleep(ctx, delay); err != nil {
			m.log.Info("Interrupted. Exiting ...")
			return nil
		}
	}
}

// NextDelay is the error delay after a failed cycle and a uniformly random
// delay in [MinDelay, MaxDelay] otherwise.
func (m *Monitor) NextDelay(res Result) time.Duration {
	if res.Err != nil {
		return m.cfg.ErrorDelay
	}
	span := int64(m.cfg.MaxDelay - m.cfg.MinDelay)
	if span <= 0 {
		return m.cfg.MinDelay
	}
	return m.cfg.MinDelay + time.Duration(m.rng.Int63n(span+1))
}

// RunCycle performs one pass. State only moves when fetch and validation
// succeed; it moves even when the alert could not be delivered.
func (m *Monitor) RunCycle(ctx context.Context) Result {
	start := m.now()
	res := Result{Part: m.cfg.Part, Location: m.cfg.Location, Timestamp: start}
	defer func() {
		res.Latency = m.now().Sub(start)
		m.publish(res)
	}()

	m.log.Debug("Getting pickup info")
	raw, err := m.fetcher.Fetch(ctx)
	if err != nil {
		m.fail(&res, err)
		return res
	}

	resp, err := pickup.Validate(raw, m.cfg.Part)
	if err != nil {
		m.archiveRaw(raw, "invalid response")
		m.fail(&res, err)
		return res
	}

	snap := pickup.Extract(resp)
	res.Snapshot = snap
	res.Total = resp.Total()
	res.Status = StatusOutOfStock
	if len(snap) > 0 {
		res.Status = StatusInStock
	}
	m.metrics.ObserveCycle("ok")
	m.metrics.SetAvailability(len(snap), res.Total, start)
	m.archiveRaw(raw, fmt.Sprintf("%d/%d stores", len(snap), res.Total))

	if !pickup.HasChanged(m.state.previous, snap) {
		m.log.WithFields(logrus.Fields{"available": len(snap), "total": res.Total}).
			Infof("[NO CHANGE] %d stores received", res.Total)
		return res
	}

	res.Changed = true
	text := notify.FormatAlert(snap, res.Total)
	m.log.WithFields(logrus.Fields{"available": len(snap), "total": res.Total}).Warn(text)
	m.archiveSnapshot(snap, text)

	id, err := m.notifier.Notify(ctx, text)
	if err != nil {
		m.log.WithError(err).Error("Alert not delivered; keeping the new snapshot anyway")
		m.metrics.ObserveNotification(false)
	} else {
		res.Notified = true
		m.metrics.ObserveNotification(true)
		if m.pinner != nil && len(snap) > 0 {
			if err := m.pinner.Pin(ctx, id); err != nil {
				m.log.WithError(err).Warn("Could not pin alert")
			}
		}
	}

	m.state.commit(snap)
	return res
}

func (m *Monitor) fail(res *Result, err error) {
	res.Status = StatusError
	res.Err = err

	entry := m.log.WithError(err)
	kind := "error"

	var transportErr *client.TransportError
	var fetchErr *client.FetchError
	var schemaErr *pickup.SchemaError
	switch {
	case errors.As(err, &fetchErr):
		kind = "fetch_error"
		entry = entry.WithFields(logrus.Fields{"status": fetchErr.StatusCode, "body": fetchErr.Body})
	case errors.As(err, &schemaErr):
		kind = "schema_error"
		entry = entry.WithField("field", schemaErr.Field)
	case errors.As(err, &transportErr):
		kind = "transport_error"
	}

	m.metrics.ObserveCycle(kind)
	entry.WithField("kind", kind).Errorf("Cycle failed, retrying in %s", m.cfg.ErrorDelay)
}

func (m *Monitor) archiveRaw(raw []byte, info string) {
	if m.archive == nil {
		return
	}
	if _, err := m.archive.WriteJSON(raw, info, "_response"); err != nil {
		m.log.WithError(err).Debug("Could not archive response")
	}
}

func (m *Monitor) archiveSnapshot(snap pickup.Snapshot, info string) {
	if m.archive == nil {
		return
	}
	if _, err := m.archive.WriteText(snap.Display(), info, "_snapshot"); err != nil {
		m.log.WithError(err).Debug("Could not archive snapshot")
	}
}

func (m *Monitor) publish(res Result) {
	if m.status == nil {
		return
	}
	fields := logrus.Fields{
		"product_id": res.Part,
		"location":   res.Location,
		"timestamp":  res.Timestamp.Unix(),
		"last_check": float64(res.Timestamp.UnixNano()) / 1e9,
		"in_stock":   res.Status == StatusInStock,
		"available":  len(res.Snapshot),
		"total":      res.Total,
		"stores":     res.Snapshot.Display(),
		"changed":    res.Changed,
		"notified":   res.Notified,
		"latency":    res.Latency.Seconds(),
	}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
	}
	m.status.WithFields(fields).Info(res.Status)
}
