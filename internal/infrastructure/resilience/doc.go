// Package resilience keeps the render engine from hammering script hosts
// that are down.
//
// A Breaker moves between three states:
//
//	closed --ReadyToTrip--> open --Timeout--> half-open --MaxRequests successes--> closed
//	                                              |
//	                                              +--any failure--> open
//
// While open, Do returns ErrCircuitOpen without calling through; while
// half-open at most MaxRequests calls are admitted and the rest get
// ErrTooManyRequests. IsSuccessful lets callers decide which errors count,
// so a 404 for a missing script does not trip a healthy host.
//
// Group hands out one breaker per key. The network resource loader keys by
// host and shares one Group across renders:
//
//	hosts := resilience.NewGroup(loader.DefaultBreakerSettings())
//	body, err := resilience.Execute(hosts.For(u.Host), download)
package resilience
