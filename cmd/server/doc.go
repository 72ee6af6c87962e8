// Package main is the entry point for the SSR render gateway.
//
// The gateway loads a render manifest, builds one render environment from
// it and serves POST /render. Each request renders in a fresh sandbox
// window that is torn down before the response is written.
//
// Configuration:
//   - Environment variables (12-factor), optionally from a .env file
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	ENV=production SSR_SECRET=... ./server --manifest ssr.yaml
//
//	# Development mode (console logs, secrets not enforced)
//	./server --log-dev --log-level debug
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
