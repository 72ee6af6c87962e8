// Package http exposes the render environment over HTTP.
//
// POST /render takes {"url": ..., "headers": {...}} and answers with the
// render result as JSON. Failed renders answer with a result too: an HTML
// error page whose status matches the response status, so callers can
// forward either shape unchanged.
package http
