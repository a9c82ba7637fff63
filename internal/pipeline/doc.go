// Package pipeline coordinates journal search, feed enablement and the
// incremental Crossref paper fetch.
//
// A paper fetch resumes from the newest indexed timestamp already stored for
// the journal and pages through Crossref works until a short page or the
// requested limit. Each page is de-duplicated by DOI and upserted before the
// next page is requested, so an interrupted fetch keeps what it stored.
package pipeline
