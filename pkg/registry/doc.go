// Package registry keeps the in-process map of live client connections.
//
// The realtime server calls OnConnect after a successful handshake and
// OnDisconnect when the socket goes away; everything else is read-only
// introspection used by the admin API and the live-connection gauge.
// Per-user delivery is handled by channel subscriptions, so the registry is
// never consulted on the send path.
package registry
