/*
Package sandbox provides the disposable DOM window a render executes in.

# Overview

A Window couples one goja runtime with one goja_nodejs event loop. Every
touch of the runtime happens on the loop goroutine: Run submits a job and
waits for it, Await additionally follows a returned promise to settlement.
Nothing is shared between windows, so isolation between renders is
structural.

# Document

The document is an x/net/html tree, minimal by default:

	<!DOCTYPE html><html><head></head><body></body></html>

Nodes are exposed to scripts through cached proxy objects sharing one
prototype per node kind. Selector queries go through goquery and markup
serialization through htmlquery. There is no layout or styling.

# Scripts

With RunScripts enabled, script elements connected to the document run:
inline ones on insertion, src ones through the ResourceLoader with load and
error events. Script bytes are decoded by DecodeScript, which rejects
binary payloads and converts legacy encodings to UTF-8.

# Teardown

Close interrupts running code, aborts in-flight script fetches, terminates
the loop (cancelling its timers) and closes the console. It is idempotent.
*/
package sandbox
