package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hrpulse/hr-notify/internal/domain"
	"github.com/hrpulse/hr-notify/internal/repository"
)

// defaultTemplates are upserted at boot so a fresh deployment can dispatch
// every built-in notification type without any admin setup.
var defaultTemplates = []struct {
	typ   domain.NotificationType
	title string
	body  string
}{
	{
		typ:   domain.TypeAnnouncement,
		title: "{{title}}",
		body:  "{{message}}\n\n{{date}}",
	},
	{
		typ:   domain.TypeNewEmployeeAdded,
		title: "New employee joined",
		body:  "{{email}} joined the company on {{date}}.",
	},
	{
		typ:   domain.TypeProfileUpdated,
		title: "Profile updated",
		body:  "Your profile was updated on {{date}}.",
	},
}

// EnsureDefaultTemplates upserts the built-in templates. Admin edits to title
// or body survive restarts because the upsert only fills in missing types —
// callers that want to reset a template do so through the admin surface.
func EnsureDefaultTemplates(ctx context.Context, store repository.Store) error {
	now := time.Now().UTC()
	for _, dt := range defaultTemplates {
		if _, err := store.GetTemplate(ctx, dt.typ); err == nil {
			continue
		}
		tpl := &domain.Template{
			ID:        uuid.New().String(),
			Type:      dt.typ,
			Title:     dt.title,
			Body:      dt.body,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.UpsertTemplate(ctx, tpl); err != nil {
			return fmt.Errorf("seed template %s: %w", dt.typ, err)
		}
	}
	return nil
}
