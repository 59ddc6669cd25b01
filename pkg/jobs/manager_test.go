package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitedex/pkg/crawler"
	"sitedex/pkg/graph"
	"sitedex/pkg/index"
)

type fakeLister struct {
	sites []graph.Site
	err   error
}

func (f *fakeLister) ListSites(ctx context.Context, ids []string) ([]graph.Site, error) {
	return f.sites, f.err
}

type fakeSiteIndexer struct {
	mu      sync.Mutex
	prior   map[string]map[string]index.FileRecord
	indexed []string

	// onIndex runs after each site crawl, before returning.
	onIndex func(siteID string)

	// block makes every crawl wait for cancellation.
	block bool
}

func (f *fakeSiteIndexer) IndexSite(ctx context.Context, site graph.Site, prior map[string]index.FileRecord) (*index.SiteIndex, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	if f.prior == nil {
		f.prior = make(map[string]map[string]index.FileRecord)
	}
	f.prior[site.ID] = prior
	f.indexed = append(f.indexed, site.ID)
	f.mu.Unlock()

	root := index.NewRootNode()
	root.Files = []index.FileRecord{{
		ID: site.ID + "-f1", Name: "doc.pdf", Path: "/doc.pdf", Source: index.SourceSharePoint,
	}}
	si := &index.SiteIndex{
		SiteID: site.ID, Name: site.Title(), Root: root, LastIndexed: time.Now().UTC(),
	}
	si.Recount()
	if f.onIndex != nil {
		f.onIndex(site.ID)
	}
	return si, nil
}

type fakeMailIndexer struct {
	users       []graph.User
	attachments []index.FileRecord
	collectErr  error

	mu        sync.Mutex
	collected []string
}

func (f *fakeMailIndexer) ListUsers(ctx context.Context) ([]graph.User, error) {
	return f.users, nil
}

func (f *fakeMailIndexer) GetUser(ctx context.Context, userID string) (*graph.User, error) {
	for _, u := range f.users {
		if u.Address() == userID || u.ID == userID {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (f *fakeMailIndexer) CollectAttachments(ctx context.Context, user graph.User, since *time.Time) ([]index.FileRecord, error) {
	f.mu.Lock()
	f.collected = append(f.collected, user.ID)
	f.mu.Unlock()
	return f.attachments, f.collectErr
}

func site(id, name string) graph.Site {
	return graph.Site{ID: id, Name: name}
}

// snapshot reads a job's status directly, terminal or not.
func (m *Manager) snapshot(id string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id].status
}

func newTestManager(lister SiteLister, si SiteIndexer, mail MailIndexer) (*Manager, *index.Store) {
	store := index.NewStore(index.Options{})
	return NewManager(lister, si, mail, store, Options{}), store
}

func TestRunIndexesAllSites(t *testing.T) {
	lister := &fakeLister{sites: []graph.Site{site("s1", "One"), site("s2", "Two")}}
	indexer := &fakeSiteIndexer{}
	m, store := newTestManager(lister, indexer, nil)

	id := m.Start(StartRequest{})
	m.Wait(id)

	status := m.snapshot(id)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 1.0, status.Progress)
	assert.Equal(t, 2, status.SitesProcessed)
	assert.Equal(t, 2, status.FilesProcessed)
	assert.NotNil(t, status.CompletedAt)

	assert.Equal(t, 2, store.Len())
	assert.Nil(t, m.Status(id), "finished jobs report as absent")
	assert.Nil(t, m.Status(""))
}

func TestRunWithNoSites(t *testing.T) {
	m, _ := newTestManager(&fakeLister{}, &fakeSiteIndexer{}, nil)

	id := m.Start(StartRequest{})
	m.Wait(id)

	status := m.snapshot(id)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 1.0, status.Progress)
}

func TestDiscoveryFailureFailsJob(t *testing.T) {
	lister := &fakeLister{err: fmt.Errorf("upstream down")}
	m, _ := newTestManager(lister, &fakeSiteIndexer{}, nil)

	id := m.Start(StartRequest{})
	m.Wait(id)

	status := m.snapshot(id)
	assert.Equal(t, StateFailed, status.State)
	assert.Contains(t, status.Message, "site discovery failed")
}

func TestStartCancelsPreviousJob(t *testing.T) {
	lister := &fakeLister{sites: []graph.Site{site("s1", "One")}}
	m, _ := newTestManager(lister, &fakeSiteIndexer{block: true}, nil)

	first := m.Start(StartRequest{})
	second := m.Start(StartRequest{})
	m.Wait(first)

	assert.Equal(t, StateCancelled, m.snapshot(first).State)
	assert.NotEqual(t, first, second)

	m.Cancel(second)
	m.Wait(second)
}

func TestCancelPreservesPartialData(t *testing.T) {
	lister := &fakeLister{sites: []graph.Site{site("s1", "One"), site("s2", "Two")}}
	indexer := &fakeSiteIndexer{}
	var m *Manager
	var store *index.Store
	// Cancel as soon as the first site has been crawled; the second site
	// must never start, yet the first stays in the store.
	indexer.onIndex = func(siteID string) {
		if siteID == "s1" {
			m.Cancel("")
		}
	}
	m, store = newTestManager(lister, indexer, nil)

	id := m.Start(StartRequest{})
	m.Wait(id)

	status := m.snapshot(id)
	assert.Equal(t, StateCancelled, status.State)
	assert.Contains(t, status.Message, "partial data preserved")

	assert.Equal(t, 1, store.Len())
	_, ok := store.Get("s1")
	assert.True(t, ok)
	assert.Equal(t, []string{"s1"}, indexer.indexed)
}

func TestIncrementalSeedOnlyForKnownSites(t *testing.T) {
	lister := &fakeLister{sites: []graph.Site{site("s1", "One"), site("s2", "Two")}}
	indexer := &fakeSiteIndexer{}
	m, store := newTestManager(lister, indexer, nil)

	// s1 was indexed in a previous run; s2 is new.
	root := index.NewRootNode()
	root.Files = []index.FileRecord{{ID: "s1-old", Name: "old.txt", Modified: time.Now().UTC()}}
	store.Update(&index.SiteIndex{SiteID: "s1", Name: "One", Root: root})

	id := m.Start(StartRequest{})
	m.Wait(id)

	require.Equal(t, StateCompleted, m.snapshot(id).State)
	require.NotNil(t, indexer.prior["s1"], "previously indexed site crawls incrementally")
	assert.Contains(t, indexer.prior["s1"], "s1-old", "seed carries the prior records by identity")
	assert.Nil(t, indexer.prior["s2"], "new site gets a full crawl")
}

func TestRequestNarrowsSiteSelection(t *testing.T) {
	lister := &fakeLister{sites: []graph.Site{site("s1", "One"), site("s2", "Two")}}
	indexer := &fakeSiteIndexer{}
	m, store := newTestManager(lister, indexer, nil)

	id := m.Start(StartRequest{SiteIDs: []string{"s2"}})
	m.Wait(id)

	assert.Equal(t, []string{"s2"}, indexer.indexed)
	assert.Equal(t, 1, store.Len())
}

func TestOwnerAttachmentsMergedIntoSite(t *testing.T) {
	owned := graph.Site{
		ID: "s1", Name: "One",
		CreatedBy: &graph.IdentitySet{User: graph.UserRef{Email: "maya@corp.example"}},
	}
	lister := &fakeLister{sites: []graph.Site{owned}}
	mail := &fakeMailIndexer{
		users: []graph.User{{ID: "u1", Mail: "maya@corp.example"}},
		attachments: []index.FileRecord{{
			ID: "email_u1_m1_a1", Name: "notes.pdf", Source: index.SourceEmail,
		}},
	}
	m, store := newTestManager(lister, &fakeSiteIndexer{}, mail)

	id := m.Start(StartRequest{})
	m.Wait(id)

	require.Equal(t, StateCompleted, m.snapshot(id).State)
	si, ok := store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 2, si.TotalFiles, "document plus attachment")
	assert.Equal(t, []string{"u1"}, mail.collected)
}

func TestMailboxPermissionFailsJob(t *testing.T) {
	owned := graph.Site{
		ID: "s1", Name: "One",
		CreatedBy: &graph.IdentitySet{User: graph.UserRef{Email: "maya@corp.example"}},
	}
	lister := &fakeLister{sites: []graph.Site{owned}}
	mail := &fakeMailIndexer{
		users:      []graph.User{{ID: "u1", Mail: "maya@corp.example"}},
		collectErr: fmt.Errorf("%w: grant Mail.Read", crawler.ErrMailboxPermission),
	}
	m, _ := newTestManager(lister, &fakeSiteIndexer{}, mail)

	id := m.Start(StartRequest{})
	m.Wait(id)

	status := m.snapshot(id)
	assert.Equal(t, StateFailed, status.State)
	assert.Contains(t, status.Message, "mailbox access denied")
}

func TestSiteToggles(t *testing.T) {
	lister := &fakeLister{sites: []graph.Site{site("s1", "One")}}
	indexer := &fakeSiteIndexer{}
	mail := &fakeMailIndexer{users: []graph.User{{ID: "u1", DisplayName: "One", Mail: "one@corp.example"}}}
	m, store := newTestManager(lister, indexer, mail)

	id := m.Start(StartRequest{Sites: map[string]SiteToggles{
		"s1": {SkipDocuments: true, SkipEmail: true},
	}})
	m.Wait(id)

	require.Equal(t, StateCompleted, m.snapshot(id).State)
	assert.Empty(t, indexer.indexed)
	assert.Empty(t, mail.collected)

	// The site still appears in the store, just empty.
	si, ok := store.Get("s1")
	require.True(t, ok)
	assert.Zero(t, si.TotalFiles)
}

func TestReset(t *testing.T) {
	lister := &fakeLister{sites: []graph.Site{site("s1", "One")}}
	m, _ := newTestManager(lister, &fakeSiteIndexer{block: true}, nil)

	id := m.Start(StartRequest{})
	m.Reset()
	m.Wait(id)

	assert.Nil(t, m.Status(id))
	assert.Nil(t, m.Status(""))
	assert.False(t, m.Cancel(""), "nothing left to cancel")
}
