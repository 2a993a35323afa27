package scraper

import "errors"

var (
	// ErrUpstreamUnavailable means a calendar or meeting page could not be fetched
	// within the retry budget
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrParseFailure means the calendar page yielded no meeting entries
	ErrParseFailure = errors.New("no meetings found on calendar page")
)
