// Package fetch is the single network primitive used by discovery, link
// resolution and document downloads.
//
// A Client applies a bounded RetryPolicy with exponential backoff, spaces requests
// per host, honors robots.txt when asked, and revalidates cached HTML pages with
// conditional GETs. Document downloads bypass the page cache and are size-capped.
package fetch
