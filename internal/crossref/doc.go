// Package crossref searches journals and pages through journal works on the
// Crossref REST API, normalizing works into feeds.PaperMeta.
//
// See https://api.crossref.org/swagger-ui/index.html for the upstream models.
package crossref
