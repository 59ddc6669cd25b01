package index

import (
	"errors"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyQuery is returned by Search for a zero-length query.
var ErrEmptyQuery = errors.New("search query must not be empty")

// Match is one search hit: the site it came from, the matching record, and
// the record's path within the site.
type Match struct {
	Site *SiteIndex
	File FileRecord
	Path string
}

// Search performs a case-insensitive, NFKC-normalized substring match
// against file names across all sites. Matches whose name starts with the
// query rank ahead of other matches, with a secondary alphabetical order by
// normalized lowercase name. A positive limit truncates the result after
// ranking.
func (s *Store) Search(query string, limit int) ([]Match, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	queryNorm := norm.NFKC.String(query)
	queryLower := strings.ToLower(queryNorm)

	s.mu.RLock()
	var results []Match
	for _, site := range s.sites {
		if site.Root == nil {
			continue
		}
		site.Root.Walk(func(node *FolderNode) {
			for _, f := range node.Files {
				nameNorm := norm.NFKC.String(f.Name)
				nameLower := strings.ToLower(nameNorm)
				if !strings.Contains(nameLower, queryLower) && !strings.Contains(nameNorm, queryNorm) {
					continue
				}
				path := f.Path
				if path == "" {
					path = node.Path
				}
				if path == "" {
					path = f.Name
				}
				results = append(results, Match{Site: site, File: f, Path: path})
			}
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		ni := strings.ToLower(norm.NFKC.String(results[i].File.Name))
		nj := strings.ToLower(norm.NFKC.String(results[j].File.Name))
		pi := strings.HasPrefix(ni, queryLower)
		pj := strings.HasPrefix(nj, queryLower)
		if pi != pj {
			return pi
		}
		return ni < nj
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}
