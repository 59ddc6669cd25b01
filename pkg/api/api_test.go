package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitedex/pkg/api"
	"sitedex/pkg/graph"
	"sitedex/pkg/index"
	"sitedex/pkg/jobs"
)

type stubLister struct {
	sites []graph.Site
}

func (s *stubLister) ListSites(ctx context.Context, ids []string) ([]graph.Site, error) {
	return s.sites, nil
}

type stubIndexer struct{}

func (stubIndexer) IndexSite(ctx context.Context, site graph.Site, prior map[string]index.FileRecord) (*index.SiteIndex, error) {
	root := index.NewRootNode()
	root.Files = []index.FileRecord{{
		ID: site.ID + "-f", Name: "crawled.txt", Path: "/crawled.txt", Source: index.SourceSharePoint,
	}}
	si := &index.SiteIndex{SiteID: site.ID, Name: site.Title(), Root: root, LastIndexed: time.Now()}
	si.Recount()
	return si, nil
}

type testEnv struct {
	store   *index.Store
	manager *jobs.Manager
	srv     *httptest.Server
}

func newTestEnv(t *testing.T, opts api.Options) *testEnv {
	t.Helper()
	store := index.NewStore(index.Options{})
	lister := &stubLister{sites: []graph.Site{{ID: "s1", Name: "Engineering"}}}
	manager := jobs.NewManager(lister, stubIndexer{}, nil, store, jobs.Options{})

	server := api.NewServer(store, manager, lister, opts)
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	return &testEnv{store: store, manager: manager, srv: srv}
}

func seedStore(store *index.Store) {
	root := index.NewRootNode()
	root.Files = []index.FileRecord{
		{ID: "f1", Name: "Report.pdf", Path: "/Report.pdf", WebURL: "https://x/r", Size: 10, CreatedBy: "Maya", Source: index.SourceSharePoint},
		{ID: "f2", Name: "notes.txt", Path: "/notes.txt", Size: 5, Source: index.SourceSharePoint},
	}
	si := &index.SiteIndex{SiteID: "s1", Name: "Engineering", Root: root}
	si.Recount()
	store.Update(si)

	other := index.NewRootNode()
	other.Files = []index.FileRecord{
		{ID: "f3", Name: "AnnualReport.docx", Path: "/AnnualReport.docx", Size: 7, Source: index.SourceEmail},
	}
	s2 := &index.SiteIndex{SiteID: "s2", Name: "Finance", Root: other}
	s2.Recount()
	store.Update(s2)
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, api.Options{Token: "secret"})

	var body map[string]string
	resp := getJSON(t, env.srv.URL+"/api/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"], "health check never requires auth")
}

func TestBearerToken(t *testing.T) {
	env := newTestEnv(t, api.Options{Token: "secret"})

	resp, err := http.Get(env.srv.URL + "/api/files")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/files", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDiscoverSites(t *testing.T) {
	env := newTestEnv(t, api.Options{})

	var body struct {
		Sites []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"sites"`
		Total int `json:"total"`
	}
	resp := getJSON(t, env.srv.URL+"/api/sites/discover", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "Engineering", body.Sites[0].Name)
}

func TestListFiles(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	seedStore(env.store)

	var page struct {
		Items []struct {
			Name     string `json:"name"`
			SiteName string `json:"site_name"`
			Source   string `json:"source"`
			Type     string `json:"type"`
		} `json:"items"`
		Total int `json:"total"`
	}
	resp := getJSON(t, env.srv.URL+"/api/files", &page)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 3, page.Total)

	// Alphabetical by lowercased name.
	assert.Equal(t, "AnnualReport.docx", page.Items[0].Name)
	assert.Equal(t, "notes.txt", page.Items[1].Name)
	assert.Equal(t, "Report.pdf", page.Items[2].Name)
	assert.Equal(t, "email", page.Items[0].Source)
	assert.Equal(t, "DOCX", page.Items[0].Type)
}

func TestListFilesSiteFilter(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	seedStore(env.store)

	var page struct {
		Total int `json:"total"`
	}
	getJSON(t, env.srv.URL+"/api/files?site_id=s2", &page)
	assert.Equal(t, 1, page.Total)
}

func TestListFilesPagination(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	seedStore(env.store)

	var page struct {
		Items      []json.RawMessage `json:"items"`
		Total      int               `json:"total"`
		TotalPages int               `json:"total_pages"`
		HasNext    bool              `json:"has_next"`
	}
	getJSON(t, env.srv.URL+"/api/files?page=1&limit=2", &page)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasNext)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	seedStore(env.store)

	var page struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	resp := getJSON(t, env.srv.URL+"/api/search?q=report", &page)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, page.Items, 2)
	// Prefix matches rank first.
	assert.Equal(t, "Report.pdf", page.Items[0].Name)
	assert.Equal(t, "AnnualReport.docx", page.Items[1].Name)
}

func TestSearchEmptyQuery(t *testing.T) {
	env := newTestEnv(t, api.Options{})

	resp, err := http.Get(env.srv.URL + "/api/search?q=")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIndexStats(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	seedStore(env.store)

	var stats index.IndexStats
	resp := getJSON(t, env.srv.URL+"/api/index/stats", &stats)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, stats.TotalSites)
	assert.Equal(t, 3, stats.TotalFiles)
}

func TestRefreshRunsJob(t *testing.T) {
	env := newTestEnv(t, api.Options{})

	resp, err := http.Post(env.srv.URL+"/api/refresh", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "started", body["status"])
	require.NotEmpty(t, body["job_id"])

	env.manager.Wait(body["job_id"])
	_, ok := env.store.Get("s1")
	assert.True(t, ok, "refresh crawled the discovered site")

	// Finished jobs report as absent.
	resp, err = http.Get(env.srv.URL + "/api/status?job_id=" + body["job_id"])
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusWithoutJob(t *testing.T) {
	env := newTestEnv(t, api.Options{})

	resp, err := http.Get(env.srv.URL + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelWithoutJob(t *testing.T) {
	env := newTestEnv(t, api.Options{})

	resp, err := http.Post(env.srv.URL+"/api/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClearAll(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	seedStore(env.store)
	require.Equal(t, 2, env.store.Len())

	resp, err := http.Post(env.srv.URL+"/api/clear-all", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, env.store.Len())
}

func TestRefreshMalformedBody(t *testing.T) {
	env := newTestEnv(t, api.Options{})

	resp, err := http.Post(env.srv.URL+"/api/refresh", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
