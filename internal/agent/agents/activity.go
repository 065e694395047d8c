package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gyaneshwarpardhi/opscore/internal/agent"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
	"github.com/gyaneshwarpardhi/opscore/internal/store"
)

// newActivityLog records every event in the store's audit trail.
func newActivityLog(d Deps, _ map[string]any) (agent.Definition, error) {
	return agent.Definition{
		ID:          "activity-log",
		Name:        "Activity log",
		Description: "Appends every event to the activity trail.",
		EventTypes:  []event.Type{event.All},
		Enabled:     true,
		Handler: func(ctx context.Context, ev event.Event) error {
			return d.Store.AppendActivity(ctx, store.Activity{
				EventID:   ev.ID,
				EventType: string(ev.Type),
				Source:    ev.Metadata.Source,
				UserID:    ev.Metadata.UserID,
				Summary:   summarize(ev),
				At:        ev.Timestamp,
			})
		},
	}, nil
}

// summarize lists the payload's identifier fields, e.g. "invoiceId=I1 projectId=P1".
func summarize(ev event.Event) string {
	payload := event.NewView(ev).Payload()
	var parts []string
	for k, v := range payload {
		if strings.HasSuffix(k, "Id") || k == "sku" {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
