// Package feeds defines the journal, paper and fetch-run types shared by the
// Crossref/OpenAlex clients, the fetch pipeline, the stores and the HTTP API.
package feeds
