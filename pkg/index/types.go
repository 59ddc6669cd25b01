// Package index holds the in-memory metadata index: the record types, the
// merged per-site snapshots, and the queryable store built on top of them.
package index

import (
	"strings"
	"time"
)

// Source tags where a file record came from.
const (
	SourceSharePoint = "sharepoint"
	SourceEmail      = "email"
)

// FileRecord is the indexed metadata for one file or email attachment.
// Records are immutable once created; a remote change produces a new record
// with the same ID that supersedes the old one during merge.
type FileRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Type       string    `json:"type"`
	WebURL     string    `json:"web_url,omitempty"`
	Size       int64     `json:"size"`
	Created    time.Time `json:"created,omitempty"`
	Modified   time.Time `json:"modified,omitempty"`
	CreatedBy  string    `json:"created_by,omitempty"`
	ModifiedBy string    `json:"modified_by,omitempty"`
	MIMEType   string    `json:"mime_type,omitempty"`
	Source     string    `json:"source"`
}

// FileType returns the record's type, deriving it from the file-name
// extension when the stored type is empty. Falls back to "UNKNOWN".
func (f FileRecord) FileType() string {
	if f.Type != "" {
		return f.Type
	}
	if t := TypeFromName(f.Name); t != "" {
		return t
	}
	return "UNKNOWN"
}

// TypeFromName derives an upper-cased type label from a file name's
// extension. Returns "" when the name has no extension.
func TypeFromName(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToUpper(name[idx+1:])
}

// FolderRecord is the indexed metadata for one folder.
type FolderRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	WebURL     string    `json:"web_url,omitempty"`
	Created    time.Time `json:"created,omitempty"`
	Modified   time.Time `json:"modified,omitempty"`
	ChildCount int       `json:"child_count"`
}

// FolderNode is a folder with its direct files and child folders, keyed by
// child folder name. Keys are unique within a parent; no ordering guarantee.
type FolderNode struct {
	Folder   FolderRecord           `json:"folder"`
	Files    []FileRecord           `json:"files,omitempty"`
	Children map[string]*FolderNode `json:"children,omitempty"`
	Path     string                 `json:"path"`
}

// NewRootNode returns an empty tree rooted at "root".
func NewRootNode() *FolderNode {
	return &FolderNode{
		Folder:   FolderRecord{ID: "root", Name: "root"},
		Children: make(map[string]*FolderNode),
	}
}

// AddChild attaches a child node under the given name, replacing any
// existing child with that name.
func (n *FolderNode) AddChild(name string, child *FolderNode) {
	if n.Children == nil {
		n.Children = make(map[string]*FolderNode)
	}
	n.Children[name] = child
}

// Walk visits this node and every descendant in preorder.
// The visit function receives each node's accumulated path.
func (n *FolderNode) Walk(visit func(node *FolderNode)) {
	visit(n)
	for _, child := range n.Children {
		child.Walk(visit)
	}
}

// Totals walks the tree and returns the aggregate file count, folder count
// (this node included) and total size.
func (n *FolderNode) Totals() (files int, folders int, size int64) {
	n.Walk(func(node *FolderNode) {
		folders++
		files += len(node.Files)
		for _, f := range node.Files {
			size += f.Size
		}
	})
	return files, folders, size
}

// SiteIndex is one site's merged snapshot. Once submitted to the Store the
// store owns it exclusively; the crawler never retains a reference.
type SiteIndex struct {
	SiteID       string      `json:"site_id"`
	Name         string      `json:"name"`
	WebURL       string      `json:"web_url"`
	Root         *FolderNode `json:"root"`
	TotalFiles   int         `json:"total_files"`
	TotalFolders int         `json:"total_folders"`
	TotalSize    int64       `json:"total_size"`
	LastIndexed  time.Time   `json:"last_indexed"`
}

// Recount recomputes the aggregate counters from the tree.
func (s *SiteIndex) Recount() {
	if s.Root == nil {
		s.TotalFiles, s.TotalFolders, s.TotalSize = 0, 0, 0
		return
	}
	s.TotalFiles, s.TotalFolders, s.TotalSize = s.Root.Totals()
}

// FilesByID returns this site's root-level files keyed by record ID.
// Used to seed incremental crawls.
func (s *SiteIndex) FilesByID() map[string]FileRecord {
	m := make(map[string]FileRecord)
	if s.Root == nil {
		return m
	}
	for _, f := range s.Root.Files {
		m[f.ID] = f
	}
	return m
}

// IndexStats is a derived summary across all indexed sites.
// Recomputed on demand, never persisted.
type IndexStats struct {
	TotalSites   int            `json:"total_sites"`
	TotalFiles   int            `json:"total_files"`
	TotalFolders int            `json:"total_folders"`
	TotalSize    int64          `json:"total_size"`
	FileTypes    map[string]int `json:"file_types"`
	LastIndexed  time.Time      `json:"last_indexed,omitempty"`
}
