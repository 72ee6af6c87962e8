package sandbox

import (
	"errors"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/browser/vconsole"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/loader"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/errinfo"
)

// MinimalDocument is the markup a window starts from by default.
const MinimalDocument = "<!DOCTYPE html><html><head></head><body></body></html>"

// DefaultUserAgent is reported by navigator.userAgent.
const DefaultUserAgent = "Mozilla/5.0 (linux) AppleWebKit/537.36 (KHTML, like Gecko) ssr-render/1.0"

var (
	// ErrWindowClosed is returned by operations on a closed window.
	ErrWindowClosed = errors.New("sandbox window is closed")
	// ErrBinaryScript is returned by DecodeScript for non-text payloads.
	ErrBinaryScript = errors.New("script payload is not text")
	// ErrPromiseRejected is the cause of a ScriptError built from a rejection.
	ErrPromiseRejected = errors.New("promise rejected")
)

// Options configure a Window.
type Options struct {
	// URL is the document URL. Relative script sources resolve against it.
	URL string
	// HTML is the initial markup. Defaults to MinimalDocument.
	HTML string
	// RunScripts executes script elements inserted into the document.
	RunScripts bool
	// Loader fetches script sources. Without one, src scripts fail to load.
	Loader loader.ResourceLoader
	// Headers are passed to the loader with every script fetch.
	Headers map[string]string
	// PretendToBeVisual reports the document as visible and provides
	// requestAnimationFrame.
	PretendToBeVisual bool
	// Console receives console calls and uncaught errors. The window closes
	// it on Close.
	Console   *vconsole.Console
	Logger    *logging.Logger
	UserAgent string
}

// ScriptError is a JavaScript exception or promise rejection surfaced to Go.
type ScriptError struct {
	Info  errinfo.Info
	Cause error
}

func (e *ScriptError) Error() string {
	return e.Info.Error
}

func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// Stack returns the JavaScript stack, if any.
func (e *ScriptError) Stack() string {
	return e.Info.Stack
}

// Props returns the primitive properties of the thrown value.
func (e *ScriptError) Props() map[string]any {
	return e.Info.Props
}
