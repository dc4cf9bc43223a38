package telemetry

import (
	"fmt"
)

// API is an abstraction over logging/metrics so crawling components can be
// asserted on in tests without scraping log output.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that broke in a way that needs attention,
	// typically a portal response the parsers no longer understand.
	//
	// The `id` names the broken component, not the failing line: a failed
	// broker list request inside the crawler is `crawler.get-brokers`, whether
	// it was the fetch or the parse that failed. Disambiguate with params or by
	// wrapping the error with fmt.Errorf.
	//
	// Formatting rules:
	// 1) all lowercase
	// 2) underscores for large components
	// 3) dashes for methods of a component
	//
	// ScopedAPI adds the package level namespace, so ids are just
	// `<struct>.<method>`.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that is not necessarily broken but may
	// be worth investigating, ex. a broker without any accounts.
	ReportWarning(id string, params ...any)

	// ReportDebug reports debug information that is dropped in production.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the count of an event at the current time. Counts
	// are points over time, they are not summed.
	ReportCount(id string, count int64)
}

// ScopedAPI attaches a namespace to every report of the inner API, like a
// sub-logger with a prefix.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI creates a ScopedAPI out of a given namespace and another api.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
