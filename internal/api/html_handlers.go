package api

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"date": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2 Jan 2006")
	},
}).ParseFS(templateFS, "templates/*.html"))

// journalView is a journal as the templates see it.
type journalView struct {
	feeds.Journal
	ISSN    string
	FeedURL string
}

type journalPageView struct {
	journalView
	Papers     []feeds.Paper
	Total      int
	Limit      int
	Offset     int
	Start      int
	PrevOffset int
	NextOffset int
	HasPrev    bool
	HasNext    bool
}

func (s *Server) view(j feeds.Journal) journalView {
	v := journalView{Journal: j, ISSN: j.PrimaryISSN()}
	if s.feeds != nil {
		v.FeedURL = s.feeds.FeedURL(v.ISSN)
	}
	return v
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "index.html", nil)
}

// searchHTML handles the htmx search form and answers with the journal list
// partial.
func (s *Server) searchHTML(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	q := strings.TrimSpace(r.PostFormValue("search"))
	if q == "" {
		http.Error(w, "search is required", http.StatusBadRequest)
		return
	}
	journals, err := s.service.SearchJournals(r.Context(), q)
	if err != nil {
		s.failHTML(w, r, "journal search failed", err)
		return
	}
	views := make([]journalView, 0, len(journals))
	for _, j := range journals {
		views = append(views, s.view(j))
	}
	s.render(w, r, http.StatusOK, "feed-list", views)
}

// makeFeed enables the journal's feed, queues its first fetch and swaps in
// the RSS button.
func (s *Server) makeFeed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	journal, runID, err := s.service.EnableFeed(ctx, chi.URLParam(r, "issn"))
	if err != nil {
		s.failHTML(w, r, "failed to enable feed", err)
		return
	}
	w.Header().Set("X-Fetch-Run", runID)
	s.render(w, r, http.StatusOK, "rss-button", s.view(journal))
}

func (s *Server) journalHTML(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultPaperLimit, maxPaperLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	page, err := s.loadPapers(r.Context(), chi.URLParam(r, "issn"), limit, offset)
	if err != nil {
		s.failHTML(w, r, "failed to load journal", err)
		return
	}
	s.render(w, r, http.StatusOK, "journal.html", journalPageView{
		journalView: s.view(page.Journal),
		Papers:      page.Papers,
		Total:       page.Total,
		Limit:       limit,
		Offset:      offset,
		Start:       offset + 1,
		PrevOffset:  max(offset-limit, 0),
		NextOffset:  offset + limit,
		HasPrev:     offset > 0,
		HasNext:     offset+limit < page.Total,
	})
}

func (s *Server) journalRSS(w http.ResponseWriter, r *http.Request) {
	journal, err := s.store.GetJournalByISSN(r.Context(), chi.URLParam(r, "issn"))
	if err != nil {
		s.failHTML(w, r, "failed to load journal", err)
		return
	}
	out, err := s.feeds.Render(r.Context(), journal)
	if err != nil {
		s.failHTML(w, r, "failed to render feed", err)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(out)); err != nil {
		s.logger.Warn("write rss failed", zap.Error(err))
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render template failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("template", name),
			zap.Error(err),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("write html failed", zap.Error(err))
	}
}

func (s *Server) failHTML(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg,
			zap.String("request_id", requestID(r.Context())),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	http.Error(w, errorMessage(status, msg), status)
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
