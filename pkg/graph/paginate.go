package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// pageSize is requested on the first page of every collection fetch. The
// server may return fewer per page; continuation links are followed until
// the collection is exhausted.
const pageSize = "999"

// PaginateAll fetches a complete collection, following continuation links.
//
// A mid-pagination failure after at least one page has arrived returns the
// partial result with a warning rather than discarding work already done;
// only a failure before any item arrives is an error.
func (c *Client) PaginateAll(ctx context.Context, rawurl string, query url.Values) ([]json.RawMessage, error) {
	if query == nil {
		query = url.Values{}
	}
	if query.Get("$top") == "" {
		query.Set("$top", pageSize)
	}

	var items []json.RawMessage
	pages := 0
	next := rawurl

	for next != "" {
		body, err := c.Request(ctx, http.MethodGet, next, query)
		if err != nil {
			if len(items) > 0 {
				c.log.Warn("pagination failed mid-collection, returning partial result",
					"url", next, "items", len(items), "pages", pages, "error", err)
				return items, nil
			}
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			if len(items) > 0 {
				c.log.Warn("malformed page mid-collection, returning partial result",
					"url", next, "items", len(items), "error", err)
				return items, nil
			}
			return nil, fmt.Errorf("decoding collection page: %w", err)
		}

		items = append(items, page.Value...)
		pages++

		// The continuation link already encodes every query parameter.
		next = page.NextLink
		query = nil
	}

	c.log.Debug("collection fetched", "url", rawurl, "items", len(items), "pages", pages)
	return items, nil
}
