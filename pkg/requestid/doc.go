// Package requestid correlates log records that belong to one HTTP request or
// one consumed domain event.
//
// Middleware reuses a well-formed X-Request-ID header or generates a UUID,
// stores it in the request context and echoes it back. Event consumers call
// Resolve on the message header and WithContext themselves. LoggerExtractor
// makes every context-aware log call include the id:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
package requestid
