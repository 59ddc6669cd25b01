// Package crawler walks the remote repository and turns its contents into
// index records: breadth-first flat file collection over document
// libraries, bounded folder-tree construction, and mailbox attachment
// metadata collection. All walks poll their context and treat
// cancellation as a valid early finish, returning whatever was gathered.
package crawler

import (
	"context"
	"time"

	"sitedex/pkg/graph"
	"sitedex/pkg/logging"
)

const (
	defaultFolderTimeout      = 120 * time.Second
	defaultMaxDepth           = 50
	defaultMaxFoldersPerLevel = 1000
	defaultThrottleDelay      = 100 * time.Millisecond
)

// DriveAPI is the slice of the remote client the document-library crawl
// needs.
type DriveAPI interface {
	ListDrives(ctx context.Context, siteID string) ([]graph.Drive, error)
	ListChildren(ctx context.Context, driveID, itemID string) ([]graph.DriveItem, error)
}

// MailAPI is the slice of the remote client the mailbox crawl needs.
type MailAPI interface {
	ListUsers(ctx context.Context) ([]graph.User, error)
	GetUser(ctx context.Context, userID string) (*graph.User, error)
	ListMessages(ctx context.Context, userID string, since *time.Time) ([]graph.Message, error)
	ListAttachments(ctx context.Context, userID, messageID string) ([]graph.Attachment, error)
}

// Options bounds a crawl. Zero values take the defaults above.
type Options struct {
	// FolderTimeout caps how long one folder listing may take before the
	// folder is skipped.
	FolderTimeout time.Duration

	// MaxDepth caps folder-tree recursion; deeper folders become empty
	// leaves.
	MaxDepth int

	// MaxFoldersPerLevel caps how many sibling folders are descended into
	// at one level; the rest are dropped with a log line.
	MaxFoldersPerLevel int

	// ThrottleDelay is the pause between folder (or message) fetches, a
	// courtesy to the server's rate limiter. Negative disables it.
	ThrottleDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.FolderTimeout <= 0 {
		o.FolderTimeout = defaultFolderTimeout
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = defaultMaxDepth
	}
	if o.MaxFoldersPerLevel <= 0 {
		o.MaxFoldersPerLevel = defaultMaxFoldersPerLevel
	}
	if o.ThrottleDelay == 0 {
		o.ThrottleDelay = defaultThrottleDelay
	} else if o.ThrottleDelay < 0 {
		o.ThrottleDelay = 0
	}
	return o
}

// Collector crawls document libraries.
type Collector struct {
	api  DriveAPI
	opts Options
	log  *logging.Logger
}

// NewCollector creates a document-library crawler.
func NewCollector(api DriveAPI, opts Options) *Collector {
	return &Collector{
		api:  api,
		opts: opts.withDefaults(),
		log:  logging.Get("crawler"),
	}
}

// throttle pauses between fetches unless the context ends first.
func throttle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
