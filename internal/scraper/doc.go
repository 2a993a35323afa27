// Package scraper discovers policy meetings from the central bank's calendar pages
// and resolves each meeting's statement and projection-material links.
//
// Parsing sits behind the Extractor interface. GoqueryExtractor understands both the
// current panel layout (.fomc-meeting rows) and the table layout used by historical
// year pages, where the meeting date lives in a th cell and the links in a td cell.
// Link labels on the live site are often just "PDF" or "HTML"; those inherit the
// text of the preceding strong/b/em element ("Statement: PDF").
package scraper
