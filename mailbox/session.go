package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/hatomail/hato/auth"
	"github.com/hatomail/hato/logger"
	"github.com/hatomail/hato/pkg/metrics"
	"github.com/hatomail/hato/pkg/retry"
)

// mailSession is one authenticated session with a mailbox selected
// read-only. Sessions are single-use: every operation opens its own and
// closes it before returning, so implementations need not be safe for
// concurrent use.
type mailSession interface {
	searchAll() ([]imap.UID, error)
	fetchHeaders(uids []imap.UID) (map[imap.UID][]byte, error)
	fetchRaw(uid imap.UID) ([]byte, error)
	close()
}

// listHeaderSection requests just the headers the listing needs. The Peek
// variant keeps the server from flagging messages as seen.
var listHeaderSection = &imap.FetchItemBodySection{
	Specifier:    imap.PartSpecifierHeader,
	HeaderFields: []string{"Subject", "Date", "From"},
	Peek:         true,
}

var fullBodySection = &imap.FetchItemBodySection{Peek: true}

type imapSession struct {
	email  string
	client *imapclient.Client
}

func (s *imapSession) searchAll() ([]imap.UID, error) {
	data, err := s.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, err
	}
	return data.AllUIDs(), nil
}

func (s *imapSession) fetchHeaders(uids []imap.UID) (map[imap.UID][]byte, error) {
	headers := make(map[imap.UID][]byte, len(uids))
	if len(uids) == 0 {
		return headers, nil
	}

	cmd := s.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{listHeaderSection},
	})
	bufs, err := cmd.Collect()
	if err != nil {
		return nil, err
	}
	for _, buf := range bufs {
		if b := buf.FindBodySection(listHeaderSection); b != nil {
			headers[buf.UID] = b
		}
	}
	return headers, nil
}

func (s *imapSession) fetchRaw(uid imap.UID) ([]byte, error) {
	cmd := s.client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{fullBodySection},
	})
	bufs, err := cmd.Collect()
	if err != nil {
		return nil, err
	}
	if len(bufs) == 0 {
		return nil, nil
	}
	return bufs[0].FindBodySection(fullBodySection), nil
}

func (s *imapSession) close() {
	if err := s.client.Logout().Wait(); err != nil {
		logger.Debugf("imap logout for %s: %v", s.email, err)
	}
	if err := s.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debugf("imap close for %s: %v", s.email, err)
	}
}

// dialSession performs one connection attempt: mint a token, dial TLS,
// authenticate with XOAUTH2 and select the mailbox read-only. One deadline
// covers the dial and the AUTHENTICATE/SELECT round-trips.
func (c *AccountClient) dialSession(ctx context.Context, mailbox string) (mailSession, error) {
	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: c.attemptTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", c.server, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.server, err)
	}
	_ = conn.SetDeadline(time.Now().Add(c.attemptTimeout))

	client := imapclient.New(conn, nil)
	if err := client.Authenticate(auth.NewXOAuth2Client(c.creds.Email, token)); err != nil {
		_ = client.Close()
		// The cached token may have been revoked upstream; the next
		// attempt mints a fresh one.
		c.tokens.Invalidate()
		return nil, fmt.Errorf("authenticate %s: %w", c.creds.Email, err)
	}

	if _, err := client.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("select %s: %w", mailbox, err)
	}

	_ = conn.SetDeadline(time.Time{})
	metrics.SessionsOpenedTotal.Inc()
	logger.Debugf("imap session opened for %s (mailbox %s)", c.creds.Email, mailbox)
	return &imapSession{email: c.creds.Email, client: client}, nil
}

// openSession runs connection attempts under the configured retry budget.
// Authentication rejections are retried like any other connect failure; a
// cancelled context stops the loop between attempts.
func (c *AccountClient) openSession(ctx context.Context, mailbox string) (mailSession, error) {
	var sess mailSession
	err := retry.WithRetry(ctx, func() error {
		s, err := c.connect(ctx, mailbox)
		if err != nil {
			metrics.ConnectAttemptsTotal.WithLabelValues("failure").Inc()
			logger.Warnf("connect attempt failed for %s: %v", c.creds.Email, err)
			return err
		}
		metrics.ConnectAttemptsTotal.WithLabelValues("success").Inc()
		sess = s
		return nil
	}, c.backoff)
	if err != nil {
		return nil, &ConnectError{Email: c.creds.Email, Attempts: c.backoff.MaxRetries + 1, Err: err}
	}
	return sess, nil
}
