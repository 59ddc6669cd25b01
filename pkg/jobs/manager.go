// Package jobs orchestrates indexing runs: one crawl at a time over the
// configured sites, flushing each site into the store as it completes so
// a cancelled or failed run still leaves everything crawled so far
// searchable.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitedex/pkg/crawler"
	"sitedex/pkg/directory"
	"sitedex/pkg/graph"
	"sitedex/pkg/index"
	"sitedex/pkg/logging"
)

// SiteLister discovers the sites a job covers.
type SiteLister interface {
	ListSites(ctx context.Context, ids []string) ([]graph.Site, error)
}

// SiteIndexer crawls one site's document library. prior carries the
// previous crawl's records by ID; nil requests a full crawl.
type SiteIndexer interface {
	IndexSite(ctx context.Context, site graph.Site, prior map[string]index.FileRecord) (*index.SiteIndex, error)
}

// MailIndexer crawls mailbox attachments for site owners.
type MailIndexer interface {
	ListUsers(ctx context.Context) ([]graph.User, error)
	GetUser(ctx context.Context, userID string) (*graph.User, error)
	CollectAttachments(ctx context.Context, user graph.User, since *time.Time) ([]index.FileRecord, error)
}

// Options configures the manager.
type Options struct {
	// SiteIDs is the configured allow-list. Empty means crawl whatever
	// discovery returns.
	SiteIDs []string

	// SiteTimeout caps one site's crawl. The site keeps whatever was
	// collected when time runs out. Zero means one hour.
	SiteTimeout time.Duration
}

// job pairs a status snapshot with the run's cancel handle.
type job struct {
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager runs indexing jobs. Starting a job cancels the previous one;
// there is never more than one crawl in flight.
type Manager struct {
	lister  SiteLister
	sites   SiteIndexer
	mail    MailIndexer
	store   *index.Store
	opts    Options
	log     *logging.Logger

	mu        sync.Mutex
	jobs      map[string]*job
	currentID string
}

// NewManager creates a job manager.
func NewManager(lister SiteLister, sites SiteIndexer, mail MailIndexer, store *index.Store, opts Options) *Manager {
	if opts.SiteTimeout <= 0 {
		opts.SiteTimeout = time.Hour
	}
	return &Manager{
		lister: lister,
		sites:  sites,
		mail:   mail,
		store:  store,
		opts:   opts,
		jobs:   make(map[string]*job),
		log:    logging.Get("jobs"),
	}
}

// Start begins a new indexing job and returns its token. Any job already
// running is cancelled first.
func (m *Manager) Start(req StartRequest) string {
	m.mu.Lock()
	if prev, ok := m.jobs[m.currentID]; ok && prev.status.State == StateRunning {
		m.cancelLocked(m.currentID, prev)
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		status: Status{
			JobID:     id,
			State:     StateRunning,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.jobs[id] = j
	m.currentID = id
	m.mu.Unlock()

	m.log.Info("indexing job started", "job", id, "sites_requested", len(req.SiteIDs))
	go m.run(ctx, id, j, req)
	return id
}

// Cancel stops a running job. An empty jobID targets the current job.
// Returns false when there is nothing running to cancel.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if jobID == "" {
		jobID = m.currentID
	}
	j, ok := m.jobs[jobID]
	if !ok || j.status.State != StateRunning {
		return false
	}
	m.cancelLocked(jobID, j)
	return true
}

func (m *Manager) cancelLocked(jobID string, j *job) {
	j.cancel()
	j.status.State = StateCancelled
	j.status.Message = "indexing cancelled by user"
	now := time.Now().UTC()
	j.status.CompletedAt = &now
	m.log.Info("indexing job cancelled", "job", jobID)
}

// Status returns a job's snapshot. An empty jobID targets the current
// job. Finished jobs that are no longer current report as absent, so a
// stale run never blocks a new one from the caller's point of view.
func (m *Manager) Status(jobID string) *Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if jobID == "" {
		jobID = m.currentID
	}
	j, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	if j.status.State.Terminal() && jobID != m.currentID {
		return nil
	}
	s := j.status
	return &s
}

// Wait blocks until the job finishes. Unknown tokens return immediately.
func (m *Manager) Wait(jobID string) {
	m.mu.Lock()
	j, ok := m.jobs[jobID]
	m.mu.Unlock()
	if ok {
		<-j.done
	}
}

// Reset cancels any running job and forgets all job history. Used when
// the index is cleared so the service starts from a clean slate.
func (m *Manager) Reset() {
	m.mu.Lock()
	for id, j := range m.jobs {
		if j.status.State == StateRunning {
			m.cancelLocked(id, j)
		}
	}
	m.jobs = make(map[string]*job)
	m.currentID = ""
	m.mu.Unlock()
	m.log.Info("job state reset")
}

// update mutates a job's status under the lock.
func (m *Manager) update(id string, fn func(*Status)) {
	m.mu.Lock()
	if j, ok := m.jobs[id]; ok {
		fn(&j.status)
	}
	m.mu.Unlock()
}

// clearCurrent detaches a finished job so Status reports it as absent.
func (m *Manager) clearCurrent(id string) {
	m.mu.Lock()
	if m.currentID == id {
		m.currentID = ""
	}
	m.mu.Unlock()
}

func (m *Manager) finish(id string, state State, msg string) {
	now := time.Now().UTC()
	m.update(id, func(s *Status) {
		// Cancel may have already finalized the status; a finished
		// verdict is never rewritten.
		if s.State.Terminal() {
			return
		}
		s.State = state
		s.Message = msg
		s.CompletedAt = &now
		s.CurrentSite = ""
		if state == StateCompleted {
			s.Progress = 1.0
		}
	})
	m.clearCurrent(id)
}

// run executes one indexing job to completion.
func (m *Manager) run(ctx context.Context, id string, j *job, req StartRequest) {
	defer close(j.done)
	defer j.cancel()

	sites, err := m.discover(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			m.finishCancelled(id)
			return
		}
		m.log.Error("site discovery failed", "job", id, "error", err)
		m.finish(id, StateFailed, fmt.Sprintf("site discovery failed: %v", err))
		return
	}
	m.update(id, func(s *Status) { s.TotalSites = len(sites) })

	if len(sites) == 0 {
		m.log.Warn("no sites to index", "job", id)
		m.finish(id, StateCompleted, "")
		return
	}

	// The directory is fetched once per job; owner matching degrades to
	// metadata-only when it is unavailable.
	var users []graph.User
	if m.mail != nil {
		if users, err = m.mail.ListUsers(ctx); err != nil {
			m.log.Warn("directory unavailable, owner matching limited to site metadata", "error", err)
			users = nil
		}
	}

	lastIndexed := m.store.LastIndexed()

	for i, site := range sites {
		if ctx.Err() != nil {
			m.finishCancelled(id)
			return
		}

		m.update(id, func(s *Status) { s.CurrentSite = site.Title() })

		// Incremental only when this exact site was indexed before;
		// a newly added site always gets a full crawl. The prior
		// snapshot's records seed the skip decision per file, so a
		// record the index has never held is always rebuilt fresh.
		var prior map[string]index.FileRecord
		var since *time.Time
		if existing, seen := m.store.Get(site.ID); seen && !lastIndexed.IsZero() {
			prior = existing.FilesByID()
			t := lastIndexed
			since = &t
			m.log.Info("incremental crawl", "job", id, "site", site.Title(), "known_files", len(prior))
		} else {
			m.log.Info("full crawl", "job", id, "site", site.Title())
		}

		if err := m.indexOne(ctx, id, site, req.Sites[site.ID], users, prior, since); err != nil {
			if ctx.Err() != nil {
				m.finishCancelled(id)
				return
			}
			if errors.Is(err, crawler.ErrMailboxPermission) {
				m.finish(id, StateFailed, err.Error())
				return
			}
			m.log.Error("site indexing failed, continuing with remaining sites",
				"job", id, "site", site.Title(), "error", err)
			m.update(id, func(s *Status) { s.Message = fmt.Sprintf("failed to index %s: %v", site.Title(), err) })
		}

		processed := i + 1
		m.update(id, func(s *Status) {
			s.SitesProcessed = processed
			s.Progress = min(0.9, float64(processed)/float64(len(sites))*0.9)
		})
	}

	m.log.Info("indexing job completed", "job", id, "sites", len(sites))
	m.finish(id, StateCompleted, "")
}

func (m *Manager) finishCancelled(id string) {
	now := time.Now().UTC()
	m.update(id, func(s *Status) {
		s.State = StateCancelled
		s.Message = "indexing cancelled by user (partial data preserved)"
		s.CompletedAt = &now
		s.CurrentSite = ""
	})
	m.clearCurrent(id)
	m.log.Info("indexing stopped, partial data preserved", "job", id)
}

// discover resolves the job's site list: the configured allow-list,
// narrowed further by the request's selection.
func (m *Manager) discover(ctx context.Context, req StartRequest) ([]graph.Site, error) {
	sites, err := m.lister.ListSites(ctx, m.opts.SiteIDs)
	if err != nil {
		return nil, err
	}
	if len(req.SiteIDs) == 0 {
		return sites, nil
	}
	want := make(map[string]bool, len(req.SiteIDs))
	for _, id := range req.SiteIDs {
		want[id] = true
	}
	selected := sites[:0]
	for _, s := range sites {
		if want[s.ID] {
			selected = append(selected, s)
		}
	}
	return selected, nil
}

// indexOne crawls one site's enabled sources and flushes the result into
// the store. Each site runs under its own timeout; when it expires the
// partial crawl is still flushed.
func (m *Manager) indexOne(ctx context.Context, id string, site graph.Site, toggles SiteToggles, users []graph.User, prior map[string]index.FileRecord, since *time.Time) error {
	siteCtx, cancel := context.WithTimeout(ctx, m.opts.SiteTimeout)
	defer cancel()

	si := &index.SiteIndex{
		SiteID:      site.ID,
		Name:        site.Title(),
		WebURL:      site.WebURL,
		Root:        index.NewRootNode(),
		LastIndexed: time.Now().UTC(),
	}

	if !toggles.SkipDocuments {
		crawled, err := m.sites.IndexSite(siteCtx, site, prior)
		if err != nil {
			return err
		}
		si = crawled
	} else {
		m.log.Info("document crawl disabled for site", "site", site.Title())
	}

	if !toggles.SkipEmail && m.mail != nil {
		attachments, err := m.collectOwnerAttachments(siteCtx, site, users, since)
		if err != nil {
			return err
		}
		if len(attachments) > 0 {
			si.Root.Files = append(si.Root.Files, attachments...)
		}
	} else if toggles.SkipEmail {
		m.log.Info("email crawl disabled for site", "site", site.Title())
	}

	si.Recount()
	if siteCtx.Err() != nil && ctx.Err() == nil {
		m.log.Error("site crawl timed out, keeping partial data", "site", site.Title())
		m.update(id, func(s *Status) { s.Message = "timeout indexing " + site.Title() })
	}

	m.store.Update(si)
	m.update(id, func(s *Status) { s.FilesProcessed += si.TotalFiles })
	m.log.Debug("site flushed to index", "site", site.Title(), "files", si.TotalFiles)
	return nil
}

// collectOwnerAttachments finds the site's owner and crawls their
// mailbox. A site with no resolvable owner simply contributes no
// attachments.
func (m *Manager) collectOwnerAttachments(ctx context.Context, site graph.Site, users []graph.User, since *time.Time) ([]index.FileRecord, error) {
	owner := directory.ResolveOwner(site, users)
	if owner == "" {
		m.log.Debug("no owner resolved for site", "site", site.Title())
		return nil, nil
	}

	user, err := m.mail.GetUser(ctx, owner)
	if err != nil {
		m.log.Warn("owner lookup failed", "site", site.Title(), "owner", owner, "error", err)
		return nil, nil
	}
	if user == nil {
		m.log.Debug("site owner not in directory", "site", site.Title(), "owner", owner)
		return nil, nil
	}

	return m.mail.CollectAttachments(ctx, *user, since)
}
