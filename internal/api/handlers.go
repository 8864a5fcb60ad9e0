package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// sendRequest is the body of POST /api/admin/notifications.
type sendRequest struct {
	RecipientID int64  `json:"recipient_id" validate:"required,gt=0"`
	Title       string `json:"title" validate:"required,max=200"`
	Message     string `json:"message" validate:"required,max=2000"`
	Type        string `json:"type" validate:"omitempty,max=32"`
}

// broadcastRequest is the body of POST /api/admin/notifications/broadcast.
type broadcastRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=2000"`
	Type    string `json:"type" validate:"omitempty,max=32"`
}

func (h *handlers) listOwn(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p := principal(r)
	items, err := h.svc.History(r.Context(), p.UserID, opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	unread, err := h.svc.CountUnread(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	meta := pageMeta(opts, len(items))
	meta["unread"] = unread
	ok(w, http.StatusOK, nonNil(items), meta)
}

func (h *handlers) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.CountUnread(r.Context(), principal(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]int{"count": n}, nil)
}

func (h *handlers) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	changed, err := h.svc.MarkRead(r.Context(), id, principal(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"id": id, "read": true, "changed": changed}, nil)
}

func (h *handlers) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkAllRead(r.Context(), principal(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]int{"updated": n}, nil)
}

func (h *handlers) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id, principal(r).UserID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listAll(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.svc.ListAll(r.Context(), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, nonNil(items), pageMeta(opts, len(items)))
}

func (h *handlers) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.svc.NotifyManual(r.Context(), req.RecipientID, notifications.Message{
		Title:   req.Title,
		Message: req.Message,
		Type:    req.Type,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, n, nil)
}

func (h *handlers) broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.svc.NotifyBroadcast(r.Context(), notifications.Message{
		Title:   req.Title,
		Message: req.Message,
		Type:    req.Type,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, nonNil(items), map[string]any{"recipients": len(items)})
}

func (h *handlers) connections(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		ok(w, http.StatusOK, map[string]any{"live": 0, "users": []int64{}, "sessions": []any{}}, nil)
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"live":     h.registry.CountLive(),
		"users":    h.registry.LiveUserIDs(),
		"sessions": h.registry.Snapshot(),
	}, nil)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, ValidationError{"id": {"must be a positive integer"}}
	}
	return id, nil
}

// listOptions reads limit, offset, unread, category (comma separated or
// repeated) and since (RFC 3339) from the query string.
func listOptions(r *http.Request) (notifications.ListOptions, error) {
	q := r.URL.Query()
	verr := ValidationError{}
	opts := notifications.ListOptions{Limit: defaultPageSize}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			verr["limit"] = append(verr["limit"], "must be a positive integer")
		} else {
			opts.Limit = min(n, maxPageSize)
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			verr["offset"] = append(verr["offset"], "must be zero or a positive integer")
		} else {
			opts.Offset = n
		}
	}
	if v := q.Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			verr["unread"] = append(verr["unread"], "must be a boolean")
		} else {
			opts.OnlyUnread = b
		}
	}
	for _, raw := range q["category"] {
		for part := range strings.SplitSeq(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			c, known := notifications.ParseCategory(part)
			if !known {
				verr["category"] = append(verr["category"], "unknown category "+strconv.Quote(part))
				continue
			}
			opts.Categories = append(opts.Categories, c)
		}
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			verr["since"] = append(verr["since"], "must be an RFC 3339 timestamp")
		} else {
			opts.Since = &t
		}
	}

	if len(verr) > 0 {
		return opts, verr
	}
	return opts, nil
}

func pageMeta(opts notifications.ListOptions, count int) map[string]any {
	return map[string]any{
		"limit":  opts.Limit,
		"offset": opts.Offset,
		"count":  count,
	}
}

func nonNil(items []notifications.Notification) []notifications.Notification {
	if items == nil {
		return []notifications.Notification{}
	}
	return items
}
