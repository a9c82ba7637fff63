// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET / and POST /search for the htmx search UI.
//   - POST /journals/{issn}/feed to opt a journal into a feed.
//   - GET /journals/{issn}/rss for the RSS 2.0 document.
//   - GET /api/journals/... for JSON listings of journals and papers.
//   - GET /api/fetches for fetch run history.
//   - GET /healthz, /readyz and /metrics for operators.
package api
