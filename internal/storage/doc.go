// Package storage owns everything the collector writes to disk: the canonical
// document layout, atomic file replacement, and the Collection Log.
//
// Documents live under <root>/<year>/<date>_<label-slug>_<statement|projections>.pdf.
// The log is kept as download_log.csv with one row per (meeting date, category),
// plus missing_projections.txt listing every category the source never published.
// Both files are rewritten whole through a temp file and rename, sorted by meeting
// date, so readers never see a partial file. The default root is data/fomc_statements.
package storage
