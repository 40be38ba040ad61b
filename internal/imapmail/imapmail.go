// Package imapmail reads unread messages from an IMAP server.
//
// Every operation opens its own connection, logs in, selects the
// mailbox and logs out again.  Message UIDs are only meaningful
// within one mailbox, so the mailbox travels in message.ID.
package imapmail

import (
	"context"
	"crypto/tls"
	"net"
	"sort"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/matta/mailsnip/internal/message"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrMessageNotFound = errors.New("message not found")

type Options struct {
	Host     string
	Port     int
	Username string
	Password string

	// Use implicit TLS.  When false the connection is unencrypted,
	// which is only suitable for local test servers.
	TLS bool
}

type Service struct {
	opts Options
	log  logrus.FieldLogger
}

func New(opts Options, log logrus.FieldLogger) (*Service, error) {
	if opts.Host == "" {
		return nil, errors.New("imap host is required")
	}
	if opts.Port == 0 {
		opts.Port = 993
		if !opts.TLS {
			opts.Port = 143
		}
	}
	return &Service{opts: opts, log: log}, nil
}

func (s *Service) addr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// session dials, logs in and selects mailbox, then calls fn.  The
// connection is torn down when fn returns or ctx is cancelled.
func (s *Service) session(ctx context.Context, mailbox string, fn func(c *imapclient.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var (
		c   *imapclient.Client
		err error
	)
	if s.opts.TLS {
		c, err = imapclient.DialTLS(s.addr(), &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: s.opts.Host},
		})
	} else {
		c, err = imapclient.DialInsecure(s.addr(), nil)
	}
	if err != nil {
		return errors.Wrapf(err, "imap connect %s", s.addr())
	}
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	if err := c.Login(s.opts.Username, s.opts.Password).Wait(); err != nil {
		return errors.Wrapf(err, "imap login %s", s.opts.Username)
	}
	defer func() {
		if err := c.Logout().Wait(); err != nil {
			s.log.WithError(err).Debug("imap logout failed")
		}
	}()

	if _, err := c.Select(mailbox, nil).Wait(); err != nil {
		return errors.Wrapf(err, "imap select %s", mailbox)
	}
	return fn(c)
}

// ListUnread returns the UIDs of the messages in mailbox that lack the
// \Seen flag, lowest first.
func (s *Service) ListUnread(ctx context.Context, mailbox string) ([]message.ID, error) {
	var ids []message.ID
	err := s.session(ctx, mailbox, func(c *imapclient.Client) error {
		data, err := c.UIDSearch(&imap.SearchCriteria{
			NotFlag: []imap.Flag{imap.FlagSeen},
		}, nil).Wait()
		if err != nil {
			return errors.Wrap(err, "imap search")
		}
		uids := data.AllUIDs()
		sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
		for _, uid := range uids {
			ids = append(ids, message.ID{
				PermID:  strconv.FormatUint(uint64(uid), 10),
				Mailbox: mailbox,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("mailbox", mailbox).Debugf("listed %d unread messages", len(ids))
	return ids, nil
}

func parseUID(id message.ID) (imap.UID, error) {
	n, err := strconv.ParseUint(id.PermID, 10, 32)
	if err != nil || n == 0 {
		return 0, errors.Errorf("invalid IMAP UID %q", id.PermID)
	}
	return imap.UID(n), nil
}

// GetMessage fetches the full message without setting \Seen and
// returns its headers and a snippet of its text.
func (s *Service) GetMessage(ctx context.Context, id message.ID) (*message.Raw, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}
	section := &imap.FetchItemBodySection{Peek: true}
	var body []byte
	err = s.session(ctx, id.Mailbox, func(c *imapclient.Client) error {
		cmd := c.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
			UID:         true,
			BodySection: []*imap.FetchItemBodySection{section},
		})
		defer cmd.Close()

		msg := cmd.Next()
		if msg == nil {
			return errors.Wrapf(ErrMessageNotFound, "uid %d", uid)
		}
		buf, err := msg.Collect()
		if err != nil {
			return errors.Wrap(err, "imap fetch")
		}
		body = buf.FindBodySection(section)
		return errors.Wrap(cmd.Close(), "imap fetch")
	})
	if err != nil {
		return nil, err
	}

	headers, snippet, err := parse(body)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing message uid %d", uid)
	}
	return &message.Raw{ID: id, Headers: headers, Snippet: snippet}, nil
}

// MarkRead adds \Seen to every message in ids.
func (s *Service) MarkRead(ctx context.Context, ids []message.ID) error {
	byMailbox := make(map[string][]imap.UID)
	var mailboxes []string
	for _, id := range ids {
		uid, err := parseUID(id)
		if err != nil {
			return err
		}
		if _, ok := byMailbox[id.Mailbox]; !ok {
			mailboxes = append(mailboxes, id.Mailbox)
		}
		byMailbox[id.Mailbox] = append(byMailbox[id.Mailbox], uid)
	}

	for _, mailbox := range mailboxes {
		uids := byMailbox[mailbox]
		err := s.session(ctx, mailbox, func(c *imapclient.Client) error {
			return c.Store(imap.UIDSetNum(uids...), &imap.StoreFlags{
				Op:     imap.StoreFlagsAdd,
				Silent: true,
				Flags:  []imap.Flag{imap.FlagSeen},
			}, nil).Close()
		})
		if err != nil {
			return errors.Wrapf(err, "marking %d messages read in %s", len(uids), mailbox)
		}
	}
	return nil
}
