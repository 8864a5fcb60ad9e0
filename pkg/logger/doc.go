// Package logger builds structured *slog.Logger instances for the notification
// service and provides attribute helpers so every component logs the same keys
// (notification_id, user_id, connection_id, channel, ...).
//
// # Usage
//
//	log := logger.New(logger.WithEnvironment("production", "notifyd"))
//	logger.SetAsDefault(log)
//
//	log.LogAttrs(ctx, slog.LevelWarn, "Push dropped",
//	    logger.NotificationID(n.ID),
//	    logger.Channel("user/7/notifications"),
//	    logger.Error(err),
//	)
//
// Error and Errors return an empty attribute for nil errors, so callers can
// pass them unconditionally.
package logger
