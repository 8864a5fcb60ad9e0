// Package realtime serves live notification delivery over websockets.
//
// A Hub fans envelopes out to subscribed connections and implements the
// notifications.Transport contract. When several replicas run behind a load
// balancer the hub can publish through a broadcast.RedisRelay so that every
// replica forwards the envelope to its own connections.
//
// Each Server connection subscribes to three channels: the user's primary
// channel, the user's backup channel and the shared broadcast channel.
// Messages are written as Frame values:
//
//	{"channel":"user/7/notifications","payload":{"event":"NOTIFICATION",...}}
//
// Clients may send {"type":"ping"} and receive {"event":"PONG"}; the server
// also sends protocol-level pings and drops peers that stop answering.
//
// Identity is resolved by an Authenticator. TrustedIdentity reads the userId
// query parameter or the X-User-ID header set by an upstream gateway.
package realtime
