// Package bridge tracks the optional runtime object a chat host injects into
// an embedded mini-app. Everything here degrades to a no-op when no host is present.
package bridge

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned when the bridge lacks the requested capability.
var ErrUnsupported = errors.New("not supported by the host bridge")

// Handle is the minimal surface every host bridge exposes.
type Handle interface {
	// InitData returns the signed, URL-encoded launch payload (may be empty).
	InitData() string
}

// Readier is implemented by bridges that signal when the host finished loading.
// Ready must eventually call done once, or return an error.
type Readier interface {
	Ready(done func()) error
}

// Closer is implemented by bridges that can close the mini-app.
type Closer interface {
	Close() error
}

// LinkOpener is implemented by bridges that can open an external link in the host.
type LinkOpener interface {
	OpenLink(url string) error
}

// Probe looks the bridge up in the surrounding environment.
type Probe interface {
	Lookup() (Handle, bool)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func() (Handle, bool)

func (f ProbeFunc) Lookup() (Handle, bool) { return f() }

// Capabilities lists the optional capabilities h supports.
func Capabilities(h Handle) []string {
	if h == nil {
		return nil
	}
	var caps []string
	if _, ok := h.(Readier); ok {
		caps = append(caps, "ready")
	}
	if _, ok := h.(Closer); ok {
		caps = append(caps, "close")
	}
	if _, ok := h.(LinkOpener); ok {
		caps = append(caps, "open_link")
	}
	return caps
}

// StaticProbe always reports h; a nil h means no bridge.
func StaticProbe(h Handle) Probe {
	return ProbeFunc(func() (Handle, bool) { return h, h != nil })
}

// OpenLink asks the host to open link outside the mini-app.
func OpenLink(h Handle, link string) error {
	o, ok := h.(LinkOpener)
	if !ok {
		return fmt.Errorf("open link: %w", ErrUnsupported)
	}
	return o.OpenLink(link)
}

// CloseApp asks the host to close the mini-app.
func CloseApp(h Handle) error {
	c, ok := h.(Closer)
	if !ok {
		return fmt.Errorf("close: %w", ErrUnsupported)
	}
	return c.Close()
}
