package jobs_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitedex/pkg/crawler"
	"sitedex/pkg/graph"
	"sitedex/pkg/index"
	"sitedex/pkg/jobs"
)

// fakeGraph is a stub of the remote API serving one site with one document
// library and one owner mailbox. The returned value records the $filter of
// the latest message listing so incremental runs can be inspected.
func fakeGraph(t *testing.T) (*httptest.Server, *atomic.Value) {
	t.Helper()

	var lastFilter atomic.Value
	lastFilter.Store("")

	mux := http.NewServeMux()
	mux.HandleFunc("/sites", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":[{
			"id":"s1","name":"Engineering","webUrl":"https://x/eng",
			"createdBy":{"user":{"email":"amara@corp.example","displayName":"Amara Diallo"}}}]}`))
	})
	mux.HandleFunc("/sites/s1/drives", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":[{"id":"d1","name":"Documents"}]}`))
	})
	var rootListings atomic.Int32
	mux.HandleFunc("/drives/d1/root/children", func(w http.ResponseWriter, r *http.Request) {
		items := `{"id":"i1","name":"report.pdf","size":10,"webUrl":"https://x/report.pdf",
			 "lastModifiedDateTime":"2024-03-01T10:00:00Z","file":{"mimeType":"application/pdf"}},
			{"id":"f1","name":"Specs","folder":{"childCount":1}}`
		if rootListings.Add(1) > 1 {
			// From the second listing on, a file that existed all along
			// but was never returned before, with an old timestamp.
			items += `,{"id":"i3","name":"legacy.txt","size":5,
			 "lastModifiedDateTime":"2024-01-02T10:00:00Z","file":{"mimeType":"text/plain"}}`
		}
		w.Write([]byte(`{"value":[` + items + `]}`))
	})
	mux.HandleFunc("/drives/d1/items/f1/children", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":[
			{"id":"i2","name":"design.docx","size":20,
			 "lastModifiedDateTime":"2024-03-02T10:00:00Z","file":{"mimeType":"application/msword"}}]}`))
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":[{"id":"u1","displayName":"Amara Diallo","mail":"amara@corp.example"}]}`))
	})
	mux.HandleFunc("/users/amara@corp.example", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"u1","displayName":"Amara Diallo","mail":"amara@corp.example"}`))
	})
	mux.HandleFunc("/users/u1/messages", func(w http.ResponseWriter, r *http.Request) {
		lastFilter.Store(r.URL.Query().Get("$filter"))
		w.Write([]byte(`{"value":[{
			"id":"m1","subject":"Budget review","hasAttachments":true,
			"receivedDateTime":"2024-03-03T09:00:00Z","lastModifiedDateTime":"2024-03-03T09:00:00Z",
			"from":{"emailAddress":{"name":"Amara Diallo","address":"amara@corp.example"}}}]}`))
	})
	mux.HandleFunc("/users/u1/messages/m1/attachments", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":[{"id":"a1","name":"budget.xlsx","contentType":"application/vnd.ms-excel","size":30}]}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &lastFilter
}

func stubTokens(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestFullRunAgainstFakeServer wires the real client, crawlers and manager
// together and drives two complete jobs over HTTP: a full crawl, then an
// incremental one that must send a modification cutoff upstream and keep
// every previously indexed record.
func TestFullRunAgainstFakeServer(t *testing.T) {
	api, lastFilter := fakeGraph(t)
	tokens := stubTokens(t)

	client := graph.New(graph.Options{
		Name:         "drive",
		Endpoint:     api.URL,
		TokenURL:     tokens.URL,
		ClientID:     "id",
		ClientSecret: "secret",
	})

	opts := crawler.Options{ThrottleDelay: -1}
	store := index.NewStore(index.Options{})
	mgr := jobs.NewManager(client,
		crawler.NewCollector(client, opts),
		crawler.NewMailCollector(client, opts),
		store, jobs.Options{})

	id := mgr.Start(jobs.StartRequest{})
	mgr.Wait(id)

	// A finished job no longer blocks the slot and reports as absent.
	assert.Nil(t, mgr.Status(id))
	assert.Equal(t, "hasAttachments eq true", lastFilter.Load().(string))

	site, ok := store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "Engineering", site.Name)
	assert.Equal(t, 3, site.TotalFiles)

	names := make(map[string]string, len(site.Root.Files))
	for _, f := range site.Root.Files {
		names[f.Name] = f.Path
	}
	assert.Equal(t, "/report.pdf", names["report.pdf"])
	assert.Equal(t, "/Specs/design.docx", names["design.docx"])
	assert.Equal(t, "Email: Budget review", names["budget.xlsx"])

	// Second run: the site is known, so the mailbox listing must carry a
	// cutoff, unchanged documents must survive the merge, and the
	// never-before-seen legacy.txt must be picked up despite its old
	// timestamp.
	id = mgr.Start(jobs.StartRequest{})
	mgr.Wait(id)

	assert.Contains(t, lastFilter.Load().(string), "hasAttachments eq true and lastModifiedDateTime ge ")

	site, ok = store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 4, site.TotalFiles)

	names = make(map[string]string, len(site.Root.Files))
	for _, f := range site.Root.Files {
		names[f.Name] = f.Path
	}
	assert.Contains(t, names, "legacy.txt")
	assert.Contains(t, names, "report.pdf")
}
