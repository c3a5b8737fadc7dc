package domain

import "errors"

// Error taxonomy shared by loaders, the aggregator and the pipeline. Every
// failure wraps exactly one of these so callers can branch with errors.Is.
var (
	// ErrNotFound reports a raw source path that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrFormat reports an unparseable field, a malformed row or a wrong file extension.
	ErrFormat = errors.New("format error")
	// ErrSchema reports required columns that are absent, or a datetime that
	// cannot be synthesized from its components.
	ErrSchema = errors.New("schema error")
	// ErrRange reports a timestamp outside the representable bounds.
	ErrRange = errors.New("range error")
	// ErrEmpty reports a load or aggregation step that yielded zero usable rows.
	ErrEmpty = errors.New("empty result")
)
