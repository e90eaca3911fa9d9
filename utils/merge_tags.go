package utils

import (
	"fmt"
	"regexp"
	"strings"

	"courselite/models"
)

// MergeTag describes one personalization variable for the authoring UI
type MergeTag struct {
	Tag         string `json:"tag"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// AvailableMergeTags lists every tag the resolver recognizes. Matching is
// an exact, case-sensitive literal match on the bracketed name.
var AvailableMergeTags = []MergeTag{
	{Tag: "{{firstName}}", Description: "User's first name", Example: "Sarah"},
	{Tag: "{{lastName}}", Description: "User's last name", Example: "Johnson"},
	{Tag: "{{email}}", Description: "User's email address", Example: "sarah@example.com"},
	{Tag: "{{fullName}}", Description: "User's full name", Example: "Sarah Johnson"},
	{Tag: "{{videoLink}}", Description: "Personal video access link", Example: "https://..."},
	{Tag: "{{unsubscribeLink}}", Description: "Unsubscribe link", Example: "https://..."},
}

// BuildMergeData maps a user record and base URL to the flat substitution
// set consumed by ReplaceMergeTags
func BuildMergeData(user *models.User, appURL string) map[string]string {
	firstName := ""
	if user.FirstName != nil {
		firstName = *user.FirstName
	}
	lastName := ""
	if user.LastName != nil {
		lastName = *user.LastName
	}

	fullName := strings.TrimSpace(firstName + " " + lastName)
	if fullName == "" {
		fullName = user.Email
	}

	videoLink := "#"
	unsubscribeLink := "#"
	if user.AccessToken != "" {
		videoLink = fmt.Sprintf("%s/watch?token=%s", appURL, user.AccessToken)
		unsubscribeLink = fmt.Sprintf("%s/unsubscribe?token=%s", appURL, user.AccessToken)
	}

	return map[string]string{
		"firstName":       firstName,
		"lastName":        lastName,
		"email":           user.Email,
		"fullName":        fullName,
		"videoLink":       videoLink,
		"unsubscribeLink": unsubscribeLink,
	}
}

// ReplaceMergeTags rewrites every occurrence of each recognized {{tag}}
// with its resolved value. Absent values become the empty string so no
// recognized placeholder survives in the output; unrecognized placeholders
// pass through verbatim.
func ReplaceMergeTags(content string, data map[string]string) string {
	processed := content
	for _, mt := range AvailableMergeTags {
		name := strings.TrimSuffix(strings.TrimPrefix(mt.Tag, "{{"), "}}")
		processed = strings.ReplaceAll(processed, mt.Tag, data[name])
	}
	return processed
}

var mergeTagPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// FindUnrecognizedTags returns the placeholders in content that the
// resolver would leave untouched. Authoring-time feedback only; the
// sweeper never rejects content over unknown tags.
func FindUnrecognizedTags(content string) []string {
	known := make(map[string]struct{}, len(AvailableMergeTags))
	for _, mt := range AvailableMergeTags {
		known[mt.Tag] = struct{}{}
	}

	var unrecognized []string
	seen := make(map[string]struct{})
	for _, match := range mergeTagPattern.FindAllString(content, -1) {
		if _, ok := known[match]; ok {
			continue
		}
		if _, dup := seen[match]; dup {
			continue
		}
		seen[match] = struct{}{}
		unrecognized = append(unrecognized, match)
	}
	return unrecognized
}
