package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sitedex/pkg/graph"
	"sitedex/pkg/index"
	"sitedex/pkg/logging"
)

// ErrMailboxPermission means the credential cannot read mailboxes at all.
// Unlike a single missing mailbox this aborts the whole mailbox crawl,
// since every remaining user would fail the same way.
var ErrMailboxPermission = errors.New("mailbox access denied")

// MailCollector crawls mailboxes for attachment metadata. Attachment
// content is never fetched.
type MailCollector struct {
	api  MailAPI
	opts Options
	log  *logging.Logger
}

// NewMailCollector creates a mailbox crawler.
func NewMailCollector(api MailAPI, opts Options) *MailCollector {
	return &MailCollector{
		api:  api,
		opts: opts.withDefaults(),
		log:  logging.Get("crawler").With("source", "mailbox"),
	}
}

// ListUsers exposes directory enumeration to the job orchestrator.
func (c *MailCollector) ListUsers(ctx context.Context) ([]graph.User, error) {
	return c.api.ListUsers(ctx)
}

// GetUser looks up one directory user by ID or address.
func (c *MailCollector) GetUser(ctx context.Context, userID string) (*graph.User, error) {
	return c.api.GetUser(ctx, userID)
}

// CollectAttachments returns attachment metadata from one user's mailbox.
//
// A user without a mailbox yields an empty result. A permission failure
// returns ErrMailboxPermission with remediation detail, since it dooms
// every other mailbox too. Other listing failures skip the user. With a
// non-nil since cutoff only messages modified at or after it are fetched.
// Cancellation mid-mailbox returns the records gathered so far.
func (c *MailCollector) CollectAttachments(ctx context.Context, user graph.User, since *time.Time) ([]index.FileRecord, error) {
	messages, err := c.api.ListMessages(ctx, user.ID, since)
	if err != nil {
		switch {
		case graph.IsNotFound(err):
			c.log.Debug("user has no mailbox", "user", user.Address())
			return nil, nil
		case graph.IsPermissionDenied(err):
			return nil, fmt.Errorf("%w for %s: %v (the application needs the Mail.Read application permission with admin consent)",
				ErrMailboxPermission, user.Address(), err)
		default:
			c.log.Warn("skipping mailbox", "user", user.Address(), "error", err)
			return nil, nil
		}
	}

	var records []index.FileRecord
	for _, msg := range messages {
		select {
		case <-ctx.Done():
			c.log.Warn("attachment collection cancelled, returning partial result",
				"user", user.Address(), "attachments", len(records))
			return records, nil
		default:
		}

		attachments, err := c.api.ListAttachments(ctx, user.ID, msg.ID)
		if err != nil {
			c.log.Warn("skipping message attachments", "user", user.Address(),
				"subject", msg.Subject, "error", err)
			continue
		}
		for _, att := range attachments {
			records = append(records, attachmentRecord(user, msg, att))
		}

		throttle(ctx, c.opts.ThrottleDelay)
	}

	c.log.Info("mailbox crawl complete", "user", user.Address(),
		"messages", len(messages), "attachments", len(records))
	return records, nil
}

// attachmentRecord converts one attachment into an index record. The ID is
// deterministic so re-crawling the same attachment merges instead of
// duplicating, and the URL links to the containing message since the
// attachment itself has no web address.
func attachmentRecord(user graph.User, msg graph.Message, att graph.Attachment) index.FileRecord {
	subject := msg.Subject
	if subject == "" {
		subject = "No Subject"
	}
	modified := msg.Modified
	if modified.IsZero() {
		modified = msg.Received
	}
	return index.FileRecord{
		ID:         fmt.Sprintf("email_%s_%s_%s", user.ID, msg.ID, att.ID),
		Name:       att.Name,
		Path:       "Email: " + subject,
		Type:       index.TypeFromName(att.Name),
		WebURL:     "https://outlook.office.com/mail/id/" + msg.ID,
		Size:       att.Size,
		Created:    msg.Received,
		Modified:   modified,
		CreatedBy:  msg.SenderName(),
		ModifiedBy: msg.SenderName(),
		MIMEType:   att.ContentType,
		Source:     index.SourceEmail,
	}
}
