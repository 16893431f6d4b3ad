// Package mailbox retrieves messages over IMAP for OAuth2-authenticated
// accounts. Every operation opens a fresh session against the remote
// server and closes it before returning; the upstream provider drops idle
// connections aggressively, so nothing is pooled.
package mailbox

import (
	"context"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hatomail/hato/auth"
	"github.com/hatomail/hato/consts"
	"github.com/hatomail/hato/logger"
	"github.com/hatomail/hato/pkg/metrics"
	"github.com/hatomail/hato/pkg/retry"
)

// Archiver stores raw fetched messages out of band. Implementations must
// tolerate concurrent calls; failures never fail the fetch that triggered
// them.
type Archiver interface {
	StoreRaw(ctx context.Context, email, hash string, raw []byte) error
}

// ClientOptions configures an AccountClient. Zero values fall back to the
// production defaults in consts.
type ClientOptions struct {
	Server          string // IMAP endpoint as host:port
	Mailbox         string // mailbox opened when an operation names none
	ConnectAttempts int
	AttemptTimeout  time.Duration
	RetryPause      time.Duration
	Auth            auth.Options // token endpoint overrides, used by tests
	Archiver        Archiver
}

// AccountClient fetches messages for a single account. It is safe for
// concurrent use; concurrent operations open independent sessions.
type AccountClient struct {
	creds    auth.Credentials
	tokens   *auth.TokenCache
	server   string
	mailbox  string
	archiver Archiver

	attemptTimeout time.Duration
	backoff        retry.BackoffConfig

	// connect is replaced in tests to avoid live sessions.
	connect func(ctx context.Context, mailbox string) (mailSession, error)
}

func NewAccountClient(creds auth.Credentials, opts ClientOptions) *AccountClient {
	if opts.Server == "" {
		opts.Server = consts.IMAPAddress
	}
	if opts.Mailbox == "" {
		opts.Mailbox = consts.DefaultMailbox
	}
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = consts.ConnectAttempts
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = consts.ConnectAttemptTimeout
	}
	if opts.RetryPause <= 0 {
		opts.RetryPause = consts.ConnectRetryPause
	}

	c := &AccountClient{
		creds:          creds,
		tokens:         auth.NewTokenCache(creds, opts.Auth),
		server:         opts.Server,
		mailbox:        opts.Mailbox,
		archiver:       opts.Archiver,
		attemptTimeout: opts.AttemptTimeout,
		backoff: retry.BackoffConfig{
			InitialInterval: opts.RetryPause,
			MaxInterval:     opts.RetryPause,
			Multiplier:      1.0,
			MaxRetries:      opts.ConnectAttempts - 1,
		},
	}
	c.connect = c.dialSession
	return c
}

// Email returns the account address this client fetches for.
func (c *AccountClient) Email() string {
	return c.creds.Email
}

// ListMessages returns the newest limit messages of a mailbox, most recent
// first, as header-only envelopes. A non-positive limit returns an empty
// result without touching the server. Messages whose headers cannot be
// parsed are skipped.
func (c *AccountClient) ListMessages(ctx context.Context, mailbox string, limit int) ([]*Envelope, error) {
	if limit <= 0 {
		return []*Envelope{}, nil
	}
	if mailbox == "" {
		mailbox = c.mailbox
	}

	timer := prometheus.NewTimer(metrics.FetchDuration.WithLabelValues("list"))
	defer timer.ObserveDuration()

	sess, err := c.openSession(ctx, mailbox)
	if err != nil {
		metrics.FetchOperationsTotal.WithLabelValues("list", "failure").Inc()
		return nil, err
	}
	defer sess.close()

	uids, err := sess.searchAll()
	if err != nil {
		metrics.FetchOperationsTotal.WithLabelValues("list", "failure").Inc()
		return nil, &ProtocolError{Email: c.creds.Email, Op: "uid search", Err: err}
	}

	// UIDs arrive in ascending assignment order, so the tail holds the
	// most recent messages.
	if len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}
	newestFirst := make([]imap.UID, 0, len(uids))
	for i := len(uids) - 1; i >= 0; i-- {
		newestFirst = append(newestFirst, uids[i])
	}

	headers, err := sess.fetchHeaders(newestFirst)
	if err != nil {
		metrics.FetchOperationsTotal.WithLabelValues("list", "failure").Inc()
		return nil, &ProtocolError{Email: c.creds.Email, Op: "uid fetch headers", Err: err}
	}

	envelopes := make([]*Envelope, 0, len(newestFirst))
	for _, uid := range newestFirst {
		header, ok := headers[uid]
		if !ok {
			logger.Warnf("no header data for message %d (%s), skipping", uid, c.creds.Email)
			continue
		}
		env, err := parseEnvelope(uid, header)
		if err != nil {
			metrics.MessagesParsedTotal.WithLabelValues("envelope", "failure").Inc()
			logger.Warnf("skipping unparsable message %d (%s): %v", uid, c.creds.Email, err)
			continue
		}
		metrics.MessagesParsedTotal.WithLabelValues("envelope", "success").Inc()
		envelopes = append(envelopes, env)
	}

	metrics.FetchOperationsTotal.WithLabelValues("list", "success").Inc()
	logger.Infof("listed %d of %d messages for %s (mailbox %s)", len(envelopes), len(uids), c.creds.Email, mailbox)
	return envelopes, nil
}

// GetMessageDetail fetches one full message by its UID string. Unknown and
// malformed identifiers report NotFoundError.
func (c *AccountClient) GetMessageDetail(ctx context.Context, id string) (*Detail, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil || uid == 0 {
		return nil, &NotFoundError{Kind: "message", ID: id}
	}

	timer := prometheus.NewTimer(metrics.FetchDuration.WithLabelValues("detail"))
	defer timer.ObserveDuration()

	sess, err := c.openSession(ctx, c.mailbox)
	if err != nil {
		metrics.FetchOperationsTotal.WithLabelValues("detail", "failure").Inc()
		return nil, err
	}
	defer sess.close()

	raw, err := sess.fetchRaw(imap.UID(uid))
	if err != nil {
		metrics.FetchOperationsTotal.WithLabelValues("detail", "failure").Inc()
		return nil, &ProtocolError{Email: c.creds.Email, Op: "uid fetch", Err: err}
	}
	if len(raw) == 0 {
		metrics.FetchOperationsTotal.WithLabelValues("detail", "failure").Inc()
		return nil, &NotFoundError{Kind: "message", ID: id}
	}

	detail, err := parseDetail(id, raw)
	if err != nil {
		metrics.MessagesParsedTotal.WithLabelValues("detail", "failure").Inc()
		metrics.FetchOperationsTotal.WithLabelValues("detail", "failure").Inc()
		return nil, err
	}
	metrics.MessagesParsedTotal.WithLabelValues("detail", "success").Inc()

	if c.archiver != nil {
		if err := c.archiver.StoreRaw(ctx, c.creds.Email, detail.ContentHash, raw); err != nil {
			logger.Warnf("archive upload failed for %s message %s: %v", c.creds.Email, id, err)
		}
	}

	metrics.FetchOperationsTotal.WithLabelValues("detail", "success").Inc()
	logger.Infof("fetched message %s for %s (%d bytes)", id, c.creds.Email, len(raw))
	return detail, nil
}
