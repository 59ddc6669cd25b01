package graph

import (
	"encoding/json"
	"errors"
	"time"
)

// listResponse is the envelope every collection endpoint returns.
// NextLink carries the continuation URL until the collection is exhausted.
type listResponse struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// ErrMissingID is returned when a response object lacks its identity field.
var ErrMissingID = errors.New("response object missing id")

// UserRef identifies the user inside a createdBy/lastModifiedBy facet.
type UserRef struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// IdentitySet is the createdBy/lastModifiedBy wrapper.
type IdentitySet struct {
	User UserRef `json:"user"`
}

// SiteOwner is the owner facet some sites carry.
type SiteOwner struct {
	Email             string `json:"email"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Site is one top-level container in the remote repository.
type Site struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"displayName"`
	WebURL      string       `json:"webUrl"`
	Description string       `json:"description"`
	CreatedBy   *IdentitySet `json:"createdBy,omitempty"`
	Owner       *SiteOwner   `json:"owner,omitempty"`
}

// Title returns the best display name for the site.
func (s Site) Title() string {
	if s.Name != "" {
		return s.Name
	}
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return "Unknown"
}

// Validate fails fast when the required identity field is absent.
func (s Site) Validate() error {
	if s.ID == "" {
		return ErrMissingID
	}
	return nil
}

// Drive is a document library within a site.
type Drive struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Validate fails fast when the required identity field is absent.
func (d Drive) Validate() error {
	if d.ID == "" {
		return ErrMissingID
	}
	return nil
}

// FileFacet marks a drive item as a file.
type FileFacet struct {
	MimeType string `json:"mimeType"`
}

// FolderFacet marks a drive item as a folder.
type FolderFacet struct {
	ChildCount int `json:"childCount"`
}

// DriveItem is a file or folder inside a document library. Exactly one of
// File and Folder is set on well-formed responses.
type DriveItem struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	WebURL      string       `json:"webUrl"`
	Size        int64        `json:"size"`
	Created     time.Time    `json:"createdDateTime"`
	Modified    time.Time    `json:"lastModifiedDateTime"`
	CreatedBy   *IdentitySet `json:"createdBy,omitempty"`
	ModifiedBy  *IdentitySet `json:"lastModifiedBy,omitempty"`
	File        *FileFacet   `json:"file,omitempty"`
	Folder      *FolderFacet `json:"folder,omitempty"`
	DownloadURL string       `json:"@microsoft.graph.downloadUrl,omitempty"`
}

// IsFile reports whether the item carries the file facet.
func (d DriveItem) IsFile() bool { return d.File != nil }

// IsFolder reports whether the item carries the folder facet.
func (d DriveItem) IsFolder() bool { return d.Folder != nil }

// Validate fails fast when the required identity field is absent.
func (d DriveItem) Validate() error {
	if d.ID == "" {
		return ErrMissingID
	}
	return nil
}

// CreatedByName returns the creating user's display name, if present.
func (d DriveItem) CreatedByName() string {
	if d.CreatedBy == nil {
		return ""
	}
	return d.CreatedBy.User.DisplayName
}

// ModifiedByName returns the last modifying user's display name, if present.
func (d DriveItem) ModifiedByName() string {
	if d.ModifiedBy == nil {
		return ""
	}
	return d.ModifiedBy.User.DisplayName
}

// EmailAddress is the address facet on a message recipient.
type EmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Recipient wraps an email address.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// Message is a mailbox message; only the metadata fields the crawler
// selects are modeled.
type Message struct {
	ID             string     `json:"id"`
	Subject        string     `json:"subject"`
	HasAttachments bool       `json:"hasAttachments"`
	Received       time.Time  `json:"receivedDateTime"`
	Modified       time.Time  `json:"lastModifiedDateTime"`
	From           *Recipient `json:"from,omitempty"`
}

// SenderName returns the sending user's display name, if present.
func (m Message) SenderName() string {
	if m.From == nil {
		return "Unknown"
	}
	if m.From.EmailAddress.Name != "" {
		return m.From.EmailAddress.Name
	}
	return "Unknown"
}

// Validate fails fast when the required identity field is absent.
func (m Message) Validate() error {
	if m.ID == "" {
		return ErrMissingID
	}
	return nil
}

// Attachment is one attachment on a message. Content is never fetched;
// only metadata is indexed.
type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Validate fails fast when the required identity field is absent.
func (a Attachment) Validate() error {
	if a.ID == "" {
		return ErrMissingID
	}
	return nil
}

// User is a directory entry in the organization.
type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Validate fails fast when the required identity field is absent.
func (u User) Validate() error {
	if u.ID == "" {
		return ErrMissingID
	}
	return nil
}

// Address returns the user's best email address.
func (u User) Address() string {
	if u.Mail != "" {
		return u.Mail
	}
	return u.UserPrincipalName
}
