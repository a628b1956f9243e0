package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultURL      = "http://localhost:5000/receive"
	DefaultDelay    = 10 * time.Millisecond
	progressEvery   = 100
	defaultFailures = 5
	defaultCooldown = 5 * time.Second
)

// StatusError is a non-200 answer from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server answered %d: %s", e.Code, e.Body)
}

// Rejected reports whether the server refused the payload itself, as
// opposed to being unavailable.
func (e *StatusError) Rejected() bool {
	return e.Code >= 400 && e.Code < 500
}

type Options struct {
	URL   string
	Delay time.Duration
	// Limit of 0 sends every record.
	Limit   int
	Client  *http.Client
	Breaker *Breaker
}

type Result struct {
	Sent   int
	Failed int
}

type Sender struct {
	url     string
	delay   time.Duration
	limit   int
	client  *http.Client
	breaker *Breaker
}

func NewSender(opts Options) *Sender {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Breaker == nil {
		opts.Breaker = NewBreaker(defaultFailures, defaultCooldown, countsAgainstServer)
	}
	return &Sender{
		url:     opts.URL,
		delay:   opts.Delay,
		limit:   opts.Limit,
		client:  opts.Client,
		breaker: opts.Breaker,
	}
}

func countsAgainstServer(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Rejected()
	}
	return !errors.Is(err, context.Canceled)
}

// Send posts one record.
func (s *Sender) Send(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Run sends records in order, pausing between sends. Failed sends are
// logged and skipped. It stops early only when ctx is cancelled.
func (s *Sender) Run(ctx context.Context, records []Record) (Result, error) {
	if s.limit > 0 && s.limit < len(records) {
		records = records[:s.limit]
	}
	total := len(records)
	log.Info().Int("records", total).Str("url", s.url).Msg("replay started")

	var res Result
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		err := s.breaker.Execute(func() error { return s.Send(ctx, rec) })
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			log.Warn().Err(err).Str("ip", rec.IP).Msg("send failed")
		} else {
			res.Sent++
			log.Debug().Str("ip", rec.IP).Msg("sent package")
		}

		if n := i + 1; n%progressEvery == 0 {
			log.Info().Int("done", n).Int("total", total).Msg("progress")
		}

		if s.delay > 0 && i < total-1 {
			t := time.NewTimer(s.delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return res, ctx.Err()
			case <-t.C:
			}
		}
	}

	log.Info().Int("sent", res.Sent).Int("failed", res.Failed).Msg("replay completed")
	return res, nil
}
