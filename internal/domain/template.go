package domain

import (
	"fmt"
	"regexp"
	"time"
)

// Template holds the display title and body for one notification type.
// Body and title may contain {{placeholder}} markers that are substituted
// from the dispatch payload at enqueue time. Templates are a read-only input
// to the pipeline; their CRUD lives in the admin surface, not here.
type Template struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render substitutes {{key}} markers in the title and body from the payload.
// The reserved key {{date}} resolves to the dispatch date unless the payload
// overrides it. Unknown placeholders render as an empty string.
func (t *Template) Render(p Payload, now time.Time) (title, body string) {
	sub := func(s string) string {
		return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
			key := placeholderRe.FindStringSubmatch(m)[1]
			if v, ok := p[key]; ok {
				return fmt.Sprint(v)
			}
			if key == "date" {
				return now.Format("2006-01-02")
			}
			return ""
		})
	}
	return sub(t.Title), sub(t.Body)
}
