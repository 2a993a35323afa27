// Package notifier raises run-level alerts about the collection pipeline.
//
// The only alert today is a structural-change warning: a non-empty run in which
// no meeting yielded a statement link, which usually means the site's markup or
// link labels changed. Alerts go to stdout in dry-run form or to a webhook.
package notifier
