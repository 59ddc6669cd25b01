package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// messageSelect trims message responses to the metadata the index needs.
const messageSelect = "id,subject,hasAttachments,receivedDateTime,lastModifiedDateTime,from"

// validated is implemented by every response shape that carries a required
// identity field.
type validated interface {
	Validate() error
}

// decodeList unmarshals raw collection items into T, logging and skipping
// any that are malformed or missing their identity field. One bad object
// in a page never poisons the rest of the collection.
func decodeList[T validated](c *Client, raw []json.RawMessage, kind string) []T {
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			c.log.Warn("skipping malformed object", "kind", kind, "error", err)
			continue
		}
		if err := item.Validate(); err != nil {
			c.log.Warn("skipping invalid object", "kind", kind, "error", err)
			continue
		}
		out = append(out, item)
	}
	return out
}

// ListSites returns the sites to crawl. With explicit IDs configured, each
// is fetched individually and unreachable ones are logged and skipped;
// otherwise every site visible to the credential is enumerated.
func (c *Client) ListSites(ctx context.Context, ids []string) ([]Site, error) {
	if len(ids) > 0 {
		sites := make([]Site, 0, len(ids))
		for _, id := range ids {
			site, err := c.GetSite(ctx, id)
			if err != nil {
				c.log.Warn("skipping unreachable site", "site", id, "error", err)
				continue
			}
			sites = append(sites, *site)
		}
		return sites, nil
	}

	raw, err := c.PaginateAll(ctx, c.endpoint+"/sites", url.Values{"search": {"*"}})
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	return decodeList[Site](c, raw, "site"), nil
}

// GetSite fetches a single site by ID.
func (c *Client) GetSite(ctx context.Context, siteID string) (*Site, error) {
	body, err := c.Request(ctx, http.MethodGet, c.endpoint+"/sites/"+url.PathEscape(siteID), nil)
	if err != nil {
		return nil, err
	}
	var site Site
	if err := json.Unmarshal(body, &site); err != nil {
		return nil, fmt.Errorf("decoding site %s: %w", siteID, err)
	}
	if err := site.Validate(); err != nil {
		return nil, fmt.Errorf("site %s: %w", siteID, err)
	}
	return &site, nil
}

// ListDrives returns the document libraries of a site.
func (c *Client) ListDrives(ctx context.Context, siteID string) ([]Drive, error) {
	raw, err := c.PaginateAll(ctx, c.endpoint+"/sites/"+url.PathEscape(siteID)+"/drives", nil)
	if err != nil {
		return nil, fmt.Errorf("listing drives for site %s: %w", siteID, err)
	}
	return decodeList[Drive](c, raw, "drive"), nil
}

// ListChildren returns the direct children of a folder. An empty or "root"
// itemID addresses the library root.
func (c *Client) ListChildren(ctx context.Context, driveID, itemID string) ([]DriveItem, error) {
	base := c.endpoint + "/drives/" + url.PathEscape(driveID)
	var u string
	if itemID == "" || itemID == "root" {
		u = base + "/root/children"
	} else {
		u = base + "/items/" + url.PathEscape(itemID) + "/children"
	}

	raw, err := c.PaginateAll(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("listing children of %s: %w", itemID, err)
	}
	return decodeList[DriveItem](c, raw, "item"), nil
}

// GetItem fetches a single drive item by ID.
func (c *Client) GetItem(ctx context.Context, driveID, itemID string) (*DriveItem, error) {
	u := c.endpoint + "/drives/" + url.PathEscape(driveID) + "/items/" + url.PathEscape(itemID)
	body, err := c.Request(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var item DriveItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("decoding item %s: %w", itemID, err)
	}
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("item %s: %w", itemID, err)
	}
	return &item, nil
}

// ListUsers enumerates the organization directory. A permission failure is
// surfaced with the grant the credential is missing, since without it the
// mailbox crawl cannot run at all.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	raw, err := c.PaginateAll(ctx, c.endpoint+"/users",
		url.Values{"$select": {"id,displayName,mail,userPrincipalName"}})
	if err != nil {
		if IsPermissionDenied(err) {
			return nil, fmt.Errorf("listing users: %w (the application needs the User.Read.All permission with admin consent)", err)
		}
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return decodeList[User](c, raw, "user"), nil
}

// GetUser fetches a single directory user. A missing user is valid absence
// and returns (nil, nil).
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	body, err := c.Request(ctx, http.MethodGet, c.endpoint+"/users/"+url.PathEscape(userID), nil)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("decoding user %s: %w", userID, err)
	}
	return &user, nil
}

// ListMessages returns a user's messages that carry attachments, newest
// activity included. With a since cutoff, only messages modified at or
// after it are fetched, keeping incremental crawls cheap on the server
// side.
func (c *Client) ListMessages(ctx context.Context, userID string, since *time.Time) ([]Message, error) {
	filter := "hasAttachments eq true"
	if since != nil {
		filter += " and lastModifiedDateTime ge " + since.UTC().Format(time.RFC3339)
	}
	query := url.Values{
		"$filter": {filter},
		"$select": {messageSelect},
	}

	raw, err := c.PaginateAll(ctx, c.endpoint+"/users/"+url.PathEscape(userID)+"/messages", query)
	if err != nil {
		return nil, fmt.Errorf("listing messages for %s: %w", userID, err)
	}
	return decodeList[Message](c, raw, "message"), nil
}

// ListAttachments returns the attachments of one message.
func (c *Client) ListAttachments(ctx context.Context, userID, messageID string) ([]Attachment, error) {
	u := c.endpoint + "/users/" + url.PathEscape(userID) + "/messages/" + url.PathEscape(messageID) + "/attachments"
	raw, err := c.PaginateAll(ctx, u, url.Values{"$select": {"id,name,contentType,size"}})
	if err != nil {
		return nil, fmt.Errorf("listing attachments for message %s: %w", messageID, err)
	}
	return decodeList[Attachment](c, raw, "attachment"), nil
}
