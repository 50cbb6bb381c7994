// Package driver defines the automation capability contract shared by
// the local headless-browser backend and the remote MCP backend, plus
// the backend handle pooling both sit behind.
//
// Callers above this interface (extractors, pagination, verification)
// must never branch on which backend is active: both backends translate
// their native failures into the same models.CrawlError taxonomy and
// expose identical extraction semantics.
package driver

import (
	"context"
	"time"

	"github.com/use-agent/agentroster/models"
)

// Backend names selectable by callers.
const (
	BackendRod = "rod"
	BackendMCP = "mcp"
)

// Driver is one live browser page (or remote session) the pipeline can
// steer. Extraction methods treat absence as data: a selector matching
// nothing yields nil, never an error.
type Driver interface {
	// Navigate loads a page. Timeouts and network failures are
	// retryable; a detectable 4xx/5xx response is not.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// WaitForSelector blocks until an element matching selector appears
	// or the timeout elapses (retryable SELECTOR_TIMEOUT).
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// ExtractText returns the first match's visible text, or nil if no
	// element matches.
	ExtractText(ctx context.Context, selector string) (*string, error)

	// ExtractAttribute returns the first match's attribute value, or nil
	// if no element matches or the attribute is unset.
	ExtractAttribute(ctx context.Context, selector, attr string) (*string, error)

	// ExtractAll captures every match in DOM order. The whole set is
	// fetched from the page in one round-trip; elements are materialized
	// lazily as the sequence is consumed.
	ExtractAll(ctx context.Context, selector string) (ElementSeq, error)

	// Click triggers a UI interaction (pagination "load more" controls).
	// Fails with a retryable INTERACTION_FAILED if the element is not
	// interactable within the timeout.
	Click(ctx context.Context, selector string, timeout time.Duration) error

	// Close releases the page-level state held by this handle.
	// Idempotent. The backend owns the underlying resource.
	Close() error
}

// Element is a point-in-time snapshot of one matched element, supporting
// sub-queries relative to itself. A selector of "" addresses the element
// itself.
type Element interface {
	Text(selector string) *string
	Attr(selector, attr string) *string
	HTML() string
}

// ElementSeq is a lazy, finite, single-pass sequence of elements in DOM
// order, usable with range-over-func. It must not be iterated twice.
type ElementSeq func(yield func(Element) bool)

// Backend owns the lifecycle of a bounded set of Driver handles: lazy
// creation on first use, a health check before reuse, and transparent
// recreation after a fatal failure. Release must be called exactly once
// per successful Acquire, with healthy=false when the operation failed
// in a way that suggests the handle is wedged.
type Backend interface {
	Name() string
	Acquire(ctx context.Context) (Driver, error)
	Release(d Driver, healthy bool)
	Stats() models.BackendStats
	Close()
}

// JS snippets shared by both backends so extraction semantics stay
// byte-identical regardless of transport.
const (
	jsTextOf = `(sel) => {
		const el = document.querySelector(sel);
		if (!el) return null;
		const t = el.innerText;
		return (t === undefined || t === '') ? el.textContent : t;
	}`

	jsAttrOf = `(sel, attr) => {
		const el = document.querySelector(sel);
		if (!el) return null;
		return el.getAttribute(attr);
	}`

	jsOuterAll = `(sel) => Array.from(document.querySelectorAll(sel)).map(el => el.outerHTML)`

	// Reads the navigation's HTTP status without CDP event listeners.
	jsHTTPStatus = `() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch (e) {}
		return 0;
	}`
)
