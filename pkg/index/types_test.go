package index_test

import (
	"testing"
	"time"

	"sitedex/pkg/index"
)

func TestTypeFromName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Report.pdf", "PDF"},
		{"archive.tar.gz", "GZ"},
		{"README", ""},
		{"noext.", ""},
		{"photo.JPG", "JPG"},
	}

	for _, tt := range tests {
		if got := index.TypeFromName(tt.name); got != tt.want {
			t.Errorf("TypeFromName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFileTypeFallback(t *testing.T) {
	f := index.FileRecord{Name: "Report.pdf"}
	if got := f.FileType(); got != "PDF" {
		t.Errorf("FileType() = %q, want PDF", got)
	}

	f = index.FileRecord{Name: "Report.pdf", Type: "DOCX"}
	if got := f.FileType(); got != "DOCX" {
		t.Errorf("FileType() = %q, want stored type DOCX", got)
	}

	f = index.FileRecord{Name: "noext"}
	if got := f.FileType(); got != "UNKNOWN" {
		t.Errorf("FileType() = %q, want UNKNOWN", got)
	}
}

func buildTestTree() *index.FolderNode {
	root := index.NewRootNode()
	root.Files = []index.FileRecord{
		{ID: "f1", Name: "a.txt", Size: 100},
		{ID: "f2", Name: "b.txt", Size: 200},
	}

	child := &index.FolderNode{
		Folder: index.FolderRecord{ID: "c1", Name: "docs"},
		Path:   "docs",
		Files: []index.FileRecord{
			{ID: "f3", Name: "c.pdf", Size: 300},
		},
	}
	root.AddChild("docs", child)

	nested := &index.FolderNode{
		Folder: index.FolderRecord{ID: "c2", Name: "old"},
		Path:   "docs/old",
	}
	child.AddChild("old", nested)

	return root
}

func TestFolderNodeTotals(t *testing.T) {
	root := buildTestTree()

	files, folders, size := root.Totals()
	if files != 3 {
		t.Errorf("files = %d, want 3", files)
	}
	if folders != 3 {
		t.Errorf("folders = %d, want 3", folders)
	}
	if size != 600 {
		t.Errorf("size = %d, want 600", size)
	}
}

func TestFolderNodeWalkVisitsAll(t *testing.T) {
	root := buildTestTree()

	visited := make(map[string]bool)
	root.Walk(func(node *index.FolderNode) {
		visited[node.Folder.ID] = true
	})

	for _, id := range []string{"root", "c1", "c2"} {
		if !visited[id] {
			t.Errorf("Walk did not visit node %s", id)
		}
	}
}

func TestSiteIndexRecount(t *testing.T) {
	site := &index.SiteIndex{
		SiteID:      "s1",
		Root:        buildTestTree(),
		LastIndexed: time.Now(),
	}
	site.Recount()

	if site.TotalFiles != 3 || site.TotalFolders != 3 || site.TotalSize != 600 {
		t.Errorf("Recount() = (%d, %d, %d), want (3, 3, 600)",
			site.TotalFiles, site.TotalFolders, site.TotalSize)
	}
}

func TestFilesByID(t *testing.T) {
	site := &index.SiteIndex{SiteID: "s1", Root: buildTestTree()}

	m := site.FilesByID()
	if len(m) != 2 {
		t.Fatalf("len(FilesByID()) = %d, want 2 (root-level files only)", len(m))
	}
	if m["f1"].Name != "a.txt" {
		t.Errorf("FilesByID()[f1].Name = %q, want a.txt", m["f1"].Name)
	}
}
