// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gmail

import (
	"context"
	"net/http"

	"github.com/matta/mailsnip/internal/message"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// Reading, listing and marking messages read.
	Scope = gmail.GmailModifyScope

	user        = "me"
	unreadLabel = "UNREAD"
	unreadQuery = "is:unread"

	// See https://developers.google.com/gmail/api/reference/quota
	quotaUnitsMessagesGet         = 5
	quotaUnitsPerMessagesList     = 5
	quotaUnitsPerMessagesBatchMod = 50

	quotaUnitsPerSecond = 250
	rateLimitPerSecond  = quotaUnitsPerSecond * 0.8
	rateLimitBurst      = quotaUnitsPerSecond

	// Maximum ids accepted by one users.messages.batchModify call.
	batchModifyMax = 1000

	// Retries of a throttled users.messages.get before giving up.
	maxThrottleRetries = 3
)

var (
	ErrMessageNotFound = errors.New("gmail message not found")
	ErrThrottled       = errors.New("gmail rate limit exceeded")
)

// GmailService provides access to messages stored in Google's GMail
// system.
type GmailService struct {
	service *gmail.Service
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

func New(ctx context.Context, client *http.Client, log logrus.FieldLogger, opts ...option.ClientOption) (*GmailService, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	s, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating gmail service")
	}
	l := rate.NewLimiter(rateLimitPerSecond, rateLimitBurst)
	return &GmailService{service: s, limiter: l, log: log}, nil
}

// ListUnread returns every unread message carrying the given label,
// following all result pages.
func (s *GmailService) ListUnread(ctx context.Context, label string) ([]message.ID, error) {
	if err := s.limiter.WaitN(ctx, quotaUnitsPerMessagesList); err != nil {
		return nil, err
	}
	req := s.service.Users.Messages.List(user).LabelIds(label).Q(unreadQuery)
	var ids []message.ID
	err := req.Pages(ctx, func(page *gmail.ListMessagesResponse) (err error) {
		for _, msg := range page.Messages {
			ids = append(ids, message.ID{PermID: msg.Id, ThreadID: msg.ThreadId, Mailbox: label})
		}
		s.log.Debugf("listed page of unread Gmail messages; count %d; total so far %d", len(page.Messages), len(ids))
		if page.NextPageToken != "" {
			err = s.limiter.WaitN(ctx, quotaUnitsPerMessagesList)
		}
		return
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to list unread messages")
	}
	return ids, nil
}

// getMessage waits on the quota limiter before each attempt.  A 429
// is retried at most maxThrottleRetries times, then ErrThrottled.
func (s *GmailService) getMessage(ctx context.Context, call *gmail.UsersMessagesGetCall) (*gmail.Message, error) {
	for attempt := 0; ; attempt++ {
		if err := s.limiter.WaitN(ctx, quotaUnitsMessagesGet); err != nil {
			return nil, err
		}
		msg, err := call.Do()
		if err == nil {
			return msg, nil
		}

		switch cause := errors.Cause(err).(type) {
		case *googleapi.Error:
			if cause.Code == http.StatusTooManyRequests {
				if attempt < maxThrottleRetries {
					s.log.Debugf("throttled by gmail; retry %d of %d", attempt+1, maxThrottleRetries)
					continue
				}
				err = errors.Wrap(ErrThrottled, cause.Message)
			}
			if cause.Code == http.StatusNotFound {
				err = ErrMessageNotFound
			}
		}
		return nil, err
	}
}

// GetMessage fetches the headers and snippet of one message.
func (s *GmailService) GetMessage(ctx context.Context, id message.ID) (*message.Raw, error) {
	msg, err := s.getMessage(ctx, s.service.Users.Messages.Get(user, id.PermID).
		Context(ctx).Format("full"))
	if err != nil {
		return nil, errors.Wrapf(err, "getting message %v from gmail", id.PermID)
	}
	raw := &message.Raw{
		ID:      message.ID{PermID: msg.Id, ThreadID: msg.ThreadId, Mailbox: id.Mailbox},
		Snippet: msg.Snippet,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			raw.Headers = append(raw.Headers, message.HeaderField{Name: h.Name, Value: h.Value})
		}
	}
	return raw, nil
}

// MarkRead removes the UNREAD label from every given message.
func (s *GmailService) MarkRead(ctx context.Context, ids []message.ID) error {
	for start := 0; start < len(ids); start += batchModifyMax {
		end := start + batchModifyMax
		if end > len(ids) {
			end = len(ids)
		}
		batch := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			batch = append(batch, id.PermID)
		}
		if err := s.limiter.WaitN(ctx, quotaUnitsPerMessagesBatchMod); err != nil {
			return err
		}
		err := s.service.Users.Messages.BatchModify(user, &gmail.BatchModifyMessagesRequest{
			Ids:            batch,
			RemoveLabelIds: []string{unreadLabel},
		}).Context(ctx).Do()
		if err != nil {
			return errors.Wrapf(err, "marking %d messages read", len(batch))
		}
	}
	return nil
}
