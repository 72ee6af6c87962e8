// Package render runs one server-side render per call.
//
// An Environment is built from a Configuration and is safe for concurrent
// use: every Render acquires its own resource loader, sandbox window, timer
// gate and console, executes the configured scripts in order, invokes the
// render callback they register and tears everything down again, whatever
// the outcome.
package render
