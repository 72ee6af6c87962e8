// Package middleware provides the gin middleware in front of the render
// gateway.
//
// Middleware stack, outermost first:
//   - RequestID: X-Request-ID passthrough or a fresh req_ ULID, plus a
//     request-scoped logger retrieved with RequestLogger
//   - AccessLog: one line per request through that logger
//   - CORS: cross-origin access with the secret and request id headers allowed
//   - RateLimit: per-IP token buckets, idle clients swept after IdleTTL
//   - SecretAuth: X-SSR-Secret against the primary and deprecated secrets
//
// SecretAuth compares in constant time. Outside production (Enforce false)
// a missing or wrong secret is logged and the request proceeds.
//
// Example Usage:
//
//	router.Use(middleware.RequestID(logger), middleware.AccessLog(logger))
//	router.Use(middleware.CORS(cfg.Server.AllowOrigins...))
//	router.POST("/render", middleware.SecretAuth(authCfg, logger), handler)
package middleware
