package agents

import (
	"context"

	"github.com/gyaneshwarpardhi/opscore/internal/agent"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
)

// newLeadRouter assigns qualified leads to an owner and parks the rest for
// nurturing.
//
//	threshold: minimum score to route (default 50)
//	owner:     owner id for routed leads (default "sales-queue")
func newLeadRouter(d Deps, params map[string]any) (agent.Definition, error) {
	threshold, err := numberParam(params, "threshold", 50)
	if err != nil {
		return agent.Definition{}, err
	}
	owner, err := stringParam(params, "owner", "sales-queue")
	if err != nil {
		return agent.Definition{}, err
	}
	return agent.Definition{
		ID:          "lead-router",
		Name:        "Lead router",
		Description: "Assigns leads scoring above the threshold to an owner.",
		EventTypes:  []event.Type{event.LeadCreated},
		Enabled:     true,
		Handler: func(ctx context.Context, ev event.Event) error {
			lead, err := event.As[event.Lead](ev.Data)
			if err != nil {
				return err
			}
			if lead.Score < threshold {
				return d.Store.Merge(ctx, "leads", lead.LeadID, map[string]any{"status": "nurture"})
			}
			assignee := owner
			if lead.OwnerID != "" {
				assignee = lead.OwnerID
			}
			err = d.Store.Merge(ctx, "leads", lead.LeadID, map[string]any{
				"status":   "assigned",
				"ownerId":  assignee,
				"routedAt": ev.Timestamp,
			})
			if err != nil {
				return err
			}
			_, err = d.Store.Increment(ctx, "owners", assignee, "openLeads", 1, ev.ID+"/lead-router")
			return err
		},
	}, nil
}
