// Package broadcast fans typed messages out to many subscribers.
//
// MemoryBroadcaster is the single-channel building block: every subscriber
// gets a bounded buffer and a full buffer gets the subscriber dropped instead
// of stalling the sender. Topics layers named channels on top of it, and
// RedisRelay carries publishes between processes via Redis pub/sub.
//
//	topics := broadcast.NewTopics[Event](16)
//	sub := topics.Subscribe(ctx, "user/7/notifications")
//	defer sub.Close()
//
//	n, err := topics.Publish(ctx, "user/7/notifications", broadcast.Message[Event]{Data: ev})
//
// Publish reports how many subscribers accepted the message, which callers use
// to tell a delivered push from one nobody was listening for.
package broadcast
