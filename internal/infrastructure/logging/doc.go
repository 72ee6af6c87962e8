// Package logging wraps uber/zap with one extra level.
//
// TraceLevel ("trace", alias "silly") sits below debug and carries sandbox
// console output and retry decisions. Production builds emit JSON; the
// development build prints colored console lines.
//
// Request handlers scope a logger with Child so every line of one render
// carries its request id:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	reqLog := logger.Child(zap.String("request_id", rid))
//	reqLog.Trace("console.log", zap.Any("args", args))
package logging
