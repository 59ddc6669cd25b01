package crawler

import (
	"context"

	"sitedex/pkg/graph"
	"sitedex/pkg/index"
)

// BuildTree constructs the folder hierarchy of a document library with its
// files attached at each node. Recursion is bounded: folders at MaxDepth
// become empty leaves and only the first MaxFoldersPerLevel sibling
// folders at any level are descended into, so a pathological library can
// never run the walk unbounded.
func (c *Collector) BuildTree(ctx context.Context, driveID string) (*index.FolderNode, error) {
	root := index.NewRootNode()
	if err := c.fillNode(ctx, driveID, "root", root, 0); err != nil {
		return nil, err
	}
	return root, nil
}

func (c *Collector) fillNode(ctx context.Context, driveID, itemID string, node *index.FolderNode, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth >= c.opts.MaxDepth {
		c.log.Warn("folder depth limit reached, truncating subtree",
			"drive", driveID, "path", node.Path, "depth", depth)
		return nil
	}

	folderCtx, cancel := context.WithTimeout(ctx, c.opts.FolderTimeout)
	items, err := c.api.ListChildren(folderCtx, driveID, itemID)
	cancel()
	if err != nil {
		c.log.Warn("skipping unreadable folder in tree", "drive", driveID,
			"path", node.Path, "error", err)
		return nil
	}

	descended := 0
	for _, item := range items {
		if item.IsFile() {
			node.Files = append(node.Files, fileRecord(item, node.Path+"/"+item.Name))
			continue
		}
		if !item.IsFolder() {
			continue
		}
		if descended >= c.opts.MaxFoldersPerLevel {
			c.log.Warn("sibling folder limit reached, dropping folder",
				"drive", driveID, "path", node.Path, "folder", item.Name,
				"limit", c.opts.MaxFoldersPerLevel)
			continue
		}
		descended++

		child := &index.FolderNode{
			Folder: folderRecordFrom(item),
			Path:   node.Path + "/" + item.Name,
		}
		node.AddChild(item.Name, child)
		if err := c.fillNode(ctx, driveID, item.ID, child, depth+1); err != nil {
			return err
		}
		throttle(ctx, c.opts.ThrottleDelay)
	}
	return nil
}

func folderRecordFrom(item graph.DriveItem) index.FolderRecord {
	childCount := 0
	if item.Folder != nil {
		childCount = item.Folder.ChildCount
	}
	return index.FolderRecord{
		ID:         item.ID,
		Name:       item.Name,
		WebURL:     item.WebURL,
		Created:    item.Created,
		Modified:   item.Modified,
		ChildCount: childCount,
	}
}
