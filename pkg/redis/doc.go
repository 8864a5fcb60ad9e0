// Package redis connects to Redis with go-redis/v9.
//
// The notification service uses Redis only for pub/sub: when several
// instances run behind a load balancer, broadcast.RedisRelay carries every
// channel publish to all of them so a client connected anywhere receives it.
//
//	client, err := redis.Connect(ctx, config.MustLoad[redis.Config]())
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package redis
