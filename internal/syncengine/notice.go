package syncengine

import (
	"errors"
	"time"

	"github.com/nguyentranbao-ct/chat-sync/internal/feed"
	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

type NoticeKind string

const (
	NoticeSubscriptionError NoticeKind = "subscription_error"
	NoticeCacheWriteFailed  NoticeKind = "cache_write_failed"
)

// Notice is a one-shot, user-visible report of a failure that did not end
// the session.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
	Err     error      `json:"-"`
}

func newNotice(kind NoticeKind, err error, at time.Time) Notice {
	n := Notice{Kind: kind, Err: err, At: at}
	switch kind {
	case NoticeSubscriptionError:
		n.Message = "Unable to receive new messages right now."
	case NoticeCacheWriteFailed:
		n.Message = "Messages could not be saved for offline use."
	}
	return n
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, feed.ErrMissingID):
		return "missing_id"
	case errors.Is(err, feed.ErrMissingTimestamp):
		return "missing_timestamp"
	case errors.Is(err, feed.ErrBadTimestamp):
		return "bad_timestamp"
	}
	return "other"
}

// sendResult labels a Send outcome for metrics.
func sendResult(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, models.ErrInvalidDraft):
		return "invalid"
	case errors.Is(err, models.ErrTornDown):
		return "torn_down"
	case errors.Is(err, models.ErrNotSent):
		return "not_sent"
	}
	return "failed"
}
