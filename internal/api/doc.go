// Package api exposes the notification service over HTTP.
//
// Callers are identified by the X-User-ID and X-User-Role headers set by the
// gateway that terminated authentication. Patient endpoints operate on the
// caller's own notifications; admin endpoints require role ADMIN.
//
// Every JSON response has the shape
//
//	{"data": ..., "meta": {...}, "error": {"code": "...", "message": "...", "details": {...}}}
//
// with only the relevant members present.
package api
