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

package poll

// This file declares the collaborators a Poller drives.

import (
	"context"

	"github.com/matta/mailsnip/internal/message"
)

// MessageLister lists unread message identifiers in a folder of a
// remote mail service.
type MessageLister interface {
	ListUnread(ctx context.Context, folder string) ([]message.ID, error)
}

// MessageGetter fetches the headers and snippet of one message.
type MessageGetter interface {
	GetMessage(ctx context.Context, id message.ID) (*message.Raw, error)
}

// MessageMarker marks messages read.
type MessageMarker interface {
	MarkRead(ctx context.Context, ids []message.ID) error
}

// MailService provides all actions a Poller needs from a remote mail
// service.
type MailService interface {
	MessageLister
	MessageGetter
	MessageMarker
}

// Writer persists one normalized message and returns where it went.
type Writer interface {
	Persist(rec *message.Record) (string, error)
}

// Journal records the outcome of every tick.
type Journal interface {
	RecordTick(ctx context.Context, r *TickReport) error
}
