// Package meeting provides the domain types for monetary-policy meeting documents.
//
// A Meeting is identified by its calendar date. Each meeting yields one DocumentCandidate per
// Category (statement, projection materials); the collection pipeline turns every candidate into
// exactly one DownloadResult, which is recorded as a LogEntry. The package also owns canonical
// naming (label slugs, file names) and the date parsing used by calendar extraction.
package meeting
