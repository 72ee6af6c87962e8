// Package client is the request layer used to download scripts.
//
// A request is built with NewRequest and dispatched with End:
//
//	f := client.NewRequest(url).
//		Agent(agent).
//		Retry(2, nil).
//		Set("User-Agent", "ssr-render/1.0").
//		Timeout(10 * time.Second).
//		Use(store).
//		Expiration(time.Minute).
//		Buffer().
//		End(ctx)
//
// End returns an abortable future. Abort cancels the in-flight attempt and
// any pending retry; it survives future.Then and future.Finally chaining.
//
// Built on go-resty/resty with one pooled transport per Agent:
//   - Retry decisions default to retryablehttp.DefaultRetryPolicy
//   - Per-host circuit breakers and optional rate limiting
//   - Responses with status >= 400 fail with *HTTPError
//   - Cacheable URLs go through a cache.Store and are stamped with the
//     writing render's cache id
//
// Request wraps the builder with a request-scoped logger, a trace session
// and cache provenance labelling.
package client
