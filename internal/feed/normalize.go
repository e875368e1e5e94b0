package feed

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

var (
	ErrMissingTimestamp = errors.New("document has no createdAt")
	ErrBadTimestamp     = errors.New("unsupported createdAt representation")
	ErrMissingID        = errors.New("document has no id")
)

// Normalize assembles a Message from a raw document, converting the server
// timestamp into a UTC time.Time.
func Normalize(doc RawDocument) (models.Message, error) {
	if doc.ID == "" {
		return models.Message{}, ErrMissingID
	}
	raw, ok := doc.Data["createdAt"]
	if !ok || raw == nil {
		return models.Message{}, fmt.Errorf("document %s: %w", doc.ID, ErrMissingTimestamp)
	}
	createdAt, err := NormalizeTimestamp(raw)
	if err != nil {
		return models.Message{}, fmt.Errorf("document %s: %w", doc.ID, err)
	}

	msg := models.Message{
		ID:        doc.ID,
		CreatedAt: createdAt,
		System:    asBool(doc.Data["system"]),
	}
	if text, ok := doc.Data["text"].(string); ok {
		msg.Text = &text
	}
	if user, ok := asMap(doc.Data["user"]); ok {
		msg.Author.ID = asString(user["_id"])
		msg.Author.DisplayName = asString(user["name"])
		if avatar, ok := user["avatar"].(string); ok && avatar != "" {
			msg.Author.AvatarRef = &avatar
		}
	}

	attachment := &models.Attachment{
		ImageURL: asString(doc.Data["image"]),
		AudioURL: asString(doc.Data["audio"]),
	}
	if loc, ok := asMap(doc.Data["location"]); ok {
		lat, latOK := asFloat(loc["latitude"])
		lng, lngOK := asFloat(loc["longitude"])
		if latOK && lngOK {
			attachment.Location = &models.Location{Latitude: lat, Longitude: lng}
		}
	}
	if attachment.ImageURL != "" || attachment.AudioURL != "" || attachment.Location != nil {
		msg.Attachment = attachment
	}

	return msg, nil
}

// NormalizeTimestamp accepts the representations a document store hands back
// for a date: native times, BSON dates and timestamps, epoch milliseconds,
// RFC 3339 strings and {seconds, nanoseconds} objects.
func NormalizeTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, ErrMissingTimestamp
		}
		return t.UTC(), nil
	case primitive.DateTime:
		return t.Time().UTC(), nil
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC(), nil
	case int64:
		return time.UnixMilli(t).UTC(), nil
	case int32:
		return time.UnixMilli(int64(t)).UTC(), nil
	case int:
		return time.UnixMilli(int64(t)).UTC(), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, ErrBadTimestamp
		}
		ms := int64(t)
		frac := t - float64(ms)
		return time.UnixMilli(ms).Add(time.Duration(frac * float64(time.Millisecond))).UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %w", ErrBadTimestamp, err)
		}
		return parsed.UTC(), nil
	}

	if m, ok := asMap(v); ok {
		secs, okSecs := asInt(firstOf(m, "seconds", "_seconds"))
		nanos, _ := asInt(firstOf(m, "nanoseconds", "_nanoseconds"))
		if okSecs {
			return time.Unix(secs, nanos).UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %T", ErrBadTimestamp, v)
}

// NormalizeBatch converts and orders one delivery. Documents that cannot be
// normalized are skipped and returned as errors.
func NormalizeBatch(docs []RawDocument) ([]models.Message, []error) {
	list := make([]models.Message, 0, len(docs))
	var errs []error
	for _, doc := range docs {
		msg, err := Normalize(doc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		list = append(list, msg)
	}
	SortMessages(list)
	return list, errs
}

// SortMessages orders newest first; equal timestamps are ordered by id
// ascending so repeated deliveries of a batch always produce the same list.
func SortMessages(list []models.Message) {
	slices.SortStableFunc(list, func(a, b models.Message) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case primitive.M:
		return map[string]any(m), true
	case primitive.D:
		out := make(map[string]any, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out, true
	}
	return nil, false
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case primitive.ObjectID:
		return s.Hex()
	}
	return ""
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
