package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

// searchJournals handles GET /api/journals/search?q=. Results are stored
// before they are returned, so every journal carries its ID.
func (s *Server) searchJournals(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	journals, err := s.service.SearchJournals(r.Context(), q)
	if err != nil {
		s.fail(w, r, "journal search failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"journals": nonNil(journals)})
}

func (s *Server) listFeedJournals(w http.ResponseWriter, r *http.Request) {
	journals, err := s.store.ListFeedJournals(r.Context())
	if err != nil {
		s.fail(w, r, "failed to list journals", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"journals": nonNil(journals)})
}

func (s *Server) getJournal(w http.ResponseWriter, r *http.Request) {
	journal, err := s.store.GetJournalByISSN(r.Context(), chi.URLParam(r, "issn"))
	if err != nil {
		s.fail(w, r, "failed to load journal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"journal": journal})
}

// listPapers handles GET /api/journals/{issn}/papers?limit=&offset=, newest
// publication first.
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultPaperLimit, maxPaperLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.loadPapers(r.Context(), chi.URLParam(r, "issn"), limit, offset)
	if err != nil {
		s.fail(w, r, "failed to list papers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"journal": page.Journal,
		"papers":  page.Papers,
		"total":   page.Total,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

// refreshJournal handles POST /api/journals/{issn}/refresh and answers 202
// with the queued run ID.
func (s *Server) refreshJournal(w http.ResponseWriter, r *http.Request) {
	issn := chi.URLParam(r, "issn")
	ctx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	runID, err := s.service.RequestRefresh(ctx, issn, feeds.ReasonManual)
	if err != nil {
		s.fail(w, r, "failed to queue refresh", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "issn": issn})
}

type paperPage struct {
	Journal feeds.Journal
	Papers  []feeds.Paper
	Total   int
	Limit   int
	Offset  int
}

func (s *Server) loadPapers(ctx context.Context, issn string, limit, offset int) (paperPage, error) {
	journal, err := s.store.GetJournalByISSN(ctx, issn)
	if err != nil {
		return paperPage{}, err
	}
	papers, err := s.store.ListPapers(ctx, journal.ID, limit, offset)
	if err != nil {
		return paperPage{}, err
	}
	total, err := s.store.CountPapers(ctx, journal.ID)
	if err != nil {
		return paperPage{}, err
	}
	return paperPage{
		Journal: journal,
		Papers:  nonNil(papers),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
