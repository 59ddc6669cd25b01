package crawler

import (
	"context"

	"sitedex/pkg/graph"
	"sitedex/pkg/index"
)

// folderRef is one pending folder in the breadth-first walk.
type folderRef struct {
	id   string
	path string
}

// CollectFiles walks a document library breadth-first and returns every
// file as a flat record list with full folder paths.
//
// prior is the previous crawl's records keyed by ID; nil means a full
// crawl. A file whose identity is already known and whose remote timestamp
// has not advanced keeps its prior record untouched. A file the index has
// never seen is always rebuilt fresh, whatever its timestamp says.
// Cancellation is checked before each folder and returns the records
// accumulated so far with a nil error: a crawl cut short is still a crawl.
func (c *Collector) CollectFiles(ctx context.Context, driveID string, prior map[string]index.FileRecord) ([]index.FileRecord, error) {
	var files []index.FileRecord
	skipped := 0
	folders := 0

	queue := []folderRef{{id: "root", path: ""}}
	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			c.log.Warn("file collection cancelled, returning partial result",
				"drive", driveID, "files", len(files), "pending_folders", len(queue))
			return files, nil
		default:
		}

		ref := queue[0]
		queue = queue[1:]
		folders++

		folderCtx, cancel := context.WithTimeout(ctx, c.opts.FolderTimeout)
		items, err := c.api.ListChildren(folderCtx, driveID, ref.id)
		cancel()
		if err != nil {
			c.log.Warn("skipping unreadable folder", "drive", driveID,
				"folder", ref.path, "error", err)
			continue
		}

		for _, item := range items {
			itemPath := ref.path + "/" + item.Name
			if item.IsFolder() {
				queue = append(queue, folderRef{id: item.ID, path: itemPath})
				continue
			}
			if !item.IsFile() {
				continue
			}
			if p, ok := prior[item.ID]; ok && !item.Modified.After(p.Modified) {
				files = append(files, p)
				skipped++
				continue
			}
			files = append(files, fileRecord(item, itemPath))
		}

		throttle(ctx, c.opts.ThrottleDelay)
	}

	c.log.Info("file collection complete", "drive", driveID,
		"files", len(files), "folders", folders, "skipped_unchanged", skipped)
	return files, nil
}

// fileRecord converts a drive item into an index record.
func fileRecord(item graph.DriveItem, path string) index.FileRecord {
	var mime string
	if item.File != nil {
		mime = item.File.MimeType
	}
	return index.FileRecord{
		ID:         item.ID,
		Name:       item.Name,
		Path:       path,
		Type:       index.TypeFromName(item.Name),
		WebURL:     item.WebURL,
		Size:       item.Size,
		Created:    item.Created,
		Modified:   item.Modified,
		CreatedBy:  item.CreatedByName(),
		ModifiedBy: item.ModifiedByName(),
		MIMEType:   mime,
		Source:     index.SourceSharePoint,
	}
}
