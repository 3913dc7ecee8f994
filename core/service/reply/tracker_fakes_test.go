package reply

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"reply_tracker/core/domain"
	"reply_tracker/core/port/out"
)

type fakeMailbox struct {
	refs    []out.MessageRef
	metas   map[string]*out.MessageMeta
	fulls   map[string]*out.FullMessage
	metaErr map[string]error
	fullErr map[string]error
	listErr error

	listCalls int
	metaCalls []string
	fullCalls []string
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		metas:   map[string]*out.MessageMeta{},
		fulls:   map[string]*out.FullMessage{},
		metaErr: map[string]error{},
		fullErr: map[string]error{},
	}
}

// add registers a message with headers and a text/plain body.
func (m *fakeMailbox) add(id string, internal time.Time, body string, headers ...[2]string) {
	meta := out.MessageMeta{ID: id, Headers: out.NewMessageHeaders(headers...), InternalDate: internal}
	m.refs = append(m.refs, out.MessageRef{ID: id})
	m.metas[id] = &meta
	m.fulls[id] = &out.FullMessage{MessageMeta: meta, Payload: textPart("text/plain", body)}
}

func (m *fakeMailbox) ListRecent(ctx context.Context, query out.ListQuery) ([]out.MessageRef, error) {
	m.listCalls++
	return m.refs, m.listErr
}

func (m *fakeMailbox) GetMetadata(ctx context.Context, id string, headers ...string) (*out.MessageMeta, error) {
	m.metaCalls = append(m.metaCalls, id)
	if err := m.metaErr[id]; err != nil {
		return nil, err
	}
	meta, ok := m.metas[id]
	if !ok {
		return nil, notFound()
	}
	return meta, nil
}

func (m *fakeMailbox) GetFull(ctx context.Context, id string) (*out.FullMessage, error) {
	m.fullCalls = append(m.fullCalls, id)
	if err := m.fullErr[id]; err != nil {
		return nil, err
	}
	full, ok := m.fulls[id]
	if !ok {
		return nil, notFound()
	}
	return full, nil
}

func notFound() error {
	return out.NewMailboxError("fake", out.MailboxErrNotFound, "Not found", errors.New("404"), false)
}

type fakeSubmissions struct {
	rows      []*domain.Submission
	filters   []out.SubmissionFilter
	updates   map[int64][]domain.ReplyUpdate
	findErr   error
	updateErr error
}

func newFakeSubmissions(rows ...*domain.Submission) *fakeSubmissions {
	return &fakeSubmissions{rows: rows, updates: map[int64][]domain.ReplyUpdate{}}
}

func (f *fakeSubmissions) FindSubmissions(ctx context.Context, filter out.SubmissionFilter) ([]*domain.Submission, error) {
	f.filters = append(f.filters, filter)
	if f.findErr != nil {
		return nil, f.findErr
	}
	var result []*domain.Submission
	for _, row := range f.rows {
		if filter.MessageID != "" && row.MessageID != filter.MessageID {
			continue
		}
		if filter.Unreplied && row.HasReply() {
			continue
		}
		clone := *row
		result = append(result, &clone)
	}
	return result, nil
}

func (f *fakeSubmissions) UpdateReply(ctx context.Context, id int64, update domain.ReplyUpdate) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates[id] = append(f.updates[id], update)
	for _, row := range f.rows {
		if row.ID == id {
			status, body, date := update.Status, update.Body, update.Date
			row.ReplyStatus, row.ReplyBody, row.ReplyDate = &status, &body, &date
			row.ReplyHistory = update.History
		}
	}
	return nil
}

func (f *fakeSubmissions) MarkClassified(ctx context.Context, id int64) error { return nil }

func (f *fakeSubmissions) IncrementClassifyAttempts(ctx context.Context, id int64) (int, error) {
	return 0, nil
}

func textPart(mimeType, text string) *out.MessagePart {
	return &out.MessagePart{
		MimeType: mimeType,
		Body:     &out.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(text))},
	}
}

func container(mimeType string, parts ...*out.MessagePart) *out.MessagePart {
	return &out.MessagePart{MimeType: mimeType, Parts: parts}
}

func hdr(name, value string) [2]string { return [2]string{name, value} }
