// Package directory resolves which person a site belongs to, so the
// mailbox crawl knows whose attachments enrich the site's index. Sites
// rarely carry a clean owner field, hence the fallback matching against
// the organization directory.
package directory

import (
	"strings"

	"sitedex/pkg/graph"
	"sitedex/pkg/logging"
)

// OwnerEmail extracts an owner address from the site's own metadata:
// the creating user first, then the owner facet. Only values that look
// like addresses count; display names without an "@" are ignored.
func OwnerEmail(site graph.Site) string {
	if site.CreatedBy != nil {
		candidate := site.CreatedBy.User.Email
		if candidate == "" {
			candidate = site.CreatedBy.User.DisplayName
		}
		if strings.Contains(candidate, "@") {
			return candidate
		}
	}
	if site.Owner != nil {
		candidate := site.Owner.Email
		if candidate == "" {
			candidate = site.Owner.UserPrincipalName
		}
		if strings.Contains(candidate, "@") {
			return candidate
		}
	}
	return ""
}

// ResolveOwner returns the email address of the site's owner, or "" when
// no owner can be determined.
//
// Site metadata wins. Failing that, personal sites usually carry their
// person's name, so the site name is matched against the directory: a
// user whose display name contains the site name, or whose address
// contains the dotted form of it ("Jane Doe" matching jane.doe@...).
func ResolveOwner(site graph.Site, users []graph.User) string {
	log := logging.Get("directory")

	if email := OwnerEmail(site); email != "" {
		return email
	}

	name := strings.ToLower(site.Title())
	if name == "" || name == "unknown" {
		return ""
	}
	dotted := strings.ReplaceAll(name, " ", ".")

	for _, u := range users {
		if u.DisplayName != "" && strings.Contains(strings.ToLower(u.DisplayName), name) {
			log.Info("matched site to directory user by name",
				"site", site.Title(), "user", u.DisplayName)
			return u.Address()
		}
		if u.Mail != "" && strings.Contains(strings.ToLower(u.Mail), dotted) {
			log.Info("matched site to directory user by address",
				"site", site.Title(), "user", u.Mail)
			return u.Mail
		}
	}
	return ""
}
