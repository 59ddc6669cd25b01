package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"sitedex/pkg/index"
	"sitedex/pkg/jobs"
	"sitedex/pkg/pagination"
)

// siteSummary is the discovery view of a site.
type siteSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// fileView is the flat listing/search row: just enough to render a table
// with a link, never the full record tree.
type fileView struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	Type         string `json:"type"`
	CreatedDate  string `json:"created_date"`
	ModifiedDate string `json:"modified_date"`
	Owner        string `json:"owner"`
	Path         string `json:"path"`
	SiteName     string `json:"site_name"`
	Source       string `json:"source"`
}

func newFileView(f index.FileRecord, path, siteName string) fileView {
	owner := f.CreatedBy
	if owner == "" {
		owner = f.ModifiedBy
	}
	var created, modified string
	if !f.Created.IsZero() {
		created = f.Created.Format(time.RFC3339)
	}
	if !f.Modified.IsZero() {
		modified = f.Modified.Format(time.RFC3339)
	}
	return fileView{
		Name:         f.Name,
		URL:          f.WebURL,
		Type:         f.FileType(),
		CreatedDate:  created,
		ModifiedDate: modified,
		Owner:        owner,
		Path:         path,
		SiteName:     siteName,
		Source:       f.Source,
	}
}

func (s *Server) health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "sitedex",
		})
	}
}

func (s *Server) discoverSites() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sites, err := s.lister.ListSites(r.Context(), nil)
		if err != nil {
			s.log.Error("site discovery failed", "error", err)
			s.renderError(w, http.StatusBadGateway, "failed to discover sites: "+err.Error())
			return
		}

		summaries := make([]siteSummary, 0, len(sites))
		for _, site := range sites {
			summaries = append(summaries, siteSummary{
				ID:          site.ID,
				Name:        site.Title(),
				URL:         site.WebURL,
				Description: site.Description,
			})
		}
		s.renderJSON(w, http.StatusOK, map[string]any{
			"sites": summaries,
			"total": len(summaries),
		})
	}
}

// refreshRequest is the refresh body. Both forms are accepted: a bare
// site-ID list, or per-site entries with source toggles.
type refreshRequest struct {
	SiteIDs []string `json:"site_ids,omitempty"`
	Sites   []struct {
		SiteID          string `json:"site_id"`
		IndexSharePoint *bool  `json:"index_sharepoint,omitempty"`
		IndexEmail      *bool  `json:"index_email,omitempty"`
	} `json:"sites,omitempty"`
}

func (s *Server) refresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body refreshRequest
		// An empty body means "index everything".
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			s.renderError(w, http.StatusBadRequest, "malformed request body")
			return
		}

		req := jobs.StartRequest{SiteIDs: body.SiteIDs}
		if len(body.Sites) > 0 {
			req.SiteIDs = req.SiteIDs[:0]
			req.Sites = make(map[string]jobs.SiteToggles, len(body.Sites))
			for _, sc := range body.Sites {
				req.SiteIDs = append(req.SiteIDs, sc.SiteID)
				req.Sites[sc.SiteID] = jobs.SiteToggles{
					SkipDocuments: sc.IndexSharePoint != nil && !*sc.IndexSharePoint,
					SkipEmail:     sc.IndexEmail != nil && !*sc.IndexEmail,
				}
			}
		}

		jobID := s.manager.Start(req)
		s.renderJSON(w, http.StatusOK, map[string]string{
			"job_id":  jobID,
			"status":  "started",
			"message": "indexing started in background",
		})
	}
}

func (s *Server) status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.manager.Status(r.URL.Query().Get("job_id"))
		if st == nil {
			s.renderError(w, http.StatusNotFound, "job not found or no active job")
			return
		}
		s.renderJSON(w, http.StatusOK, st)
	}
}

func (s *Server) getIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit := s.pageParams(r)
		sites := s.store.ListAll()
		sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })
		s.renderJSON(w, http.StatusOK, pagination.Paginate(sites, page, limit, s.opts.MaxPageSize))
	}
}

func (s *Server) indexStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderJSON(w, http.StatusOK, s.store.Stats())
	}
}

func (s *Server) listFiles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit := s.pageParams(r)
		siteFilter := r.URL.Query().Get("site_id")

		var views []fileView
		for _, si := range s.store.ListAll() {
			if siteFilter != "" && si.SiteID != siteFilter {
				continue
			}
			if si.Root == nil {
				continue
			}
			for _, f := range si.Root.Files {
				views = append(views, newFileView(f, f.Path, si.Name))
			}
		}
		sort.Slice(views, func(i, j int) bool {
			return strings.ToLower(views[i].Name) < strings.ToLower(views[j].Name)
		})

		s.renderJSON(w, http.StatusOK, pagination.Paginate(views, page, limit, s.opts.MaxPageSize))
	}
}

func (s *Server) search() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		page, limit := s.pageParams(r)

		// Fetch enough ranked matches to fill every page up to the
		// requested one.
		matches, err := s.store.Search(q, limit*page)
		if err != nil {
			if errors.Is(err, index.ErrEmptyQuery) {
				s.renderError(w, http.StatusBadRequest, "search query must not be empty")
				return
			}
			s.renderError(w, http.StatusInternalServerError, err.Error())
			return
		}

		views := make([]fileView, 0, len(matches))
		for _, m := range matches {
			siteName := ""
			if m.Site != nil {
				siteName = m.Site.Name
			}
			views = append(views, newFileView(m.File, m.Path, siteName))
		}
		s.renderJSON(w, http.StatusOK, pagination.Paginate(views, page, limit, s.opts.MaxPageSize))
	}
}

func (s *Server) cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.manager.Cancel(r.URL.Query().Get("job_id")) {
			s.renderError(w, http.StatusNotFound, "job not found or not running")
			return
		}
		s.renderJSON(w, http.StatusOK, map[string]string{
			"status":  "cancelled",
			"message": "indexing job cancelled successfully",
		})
	}
}

func (s *Server) clearAll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.manager.Cancel("")
		s.manager.Reset()
		s.store.Clear()
		s.log.Info("all indexed data cleared")
		s.renderJSON(w, http.StatusOK, map[string]string{
			"status":  "success",
			"message": "all indexed data cleared and processes stopped",
		})
	}
}

// pageParams reads page/limit query parameters with defaults and bounds.
func (s *Server) pageParams(r *http.Request) (page, limit int) {
	page = 1
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	limit = s.opts.DefaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	return page, limit
}
