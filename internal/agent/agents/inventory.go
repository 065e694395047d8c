package agents

import (
	"context"

	"github.com/gyaneshwarpardhi/opscore/internal/agent"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
)

// newInventoryWatch raises inventory:low-stock when a stock level drops to
// or below its reorder point.
func newInventoryWatch(d Deps, _ map[string]any) (agent.Definition, error) {
	return agent.Definition{
		ID:          "inventory-watch",
		Name:        "Inventory watch",
		Description: "Flags stock levels at or below their reorder point.",
		EventTypes:  []event.Type{event.InventoryUpdated},
		Enabled:     true,
		Handler: func(ctx context.Context, ev event.Event) error {
			if !hasLevels(ev.Data) {
				return nil
			}
			level, err := event.As[event.StockLevel](ev.Data)
			if err != nil {
				return err
			}
			if level.Quantity > level.ReorderPoint {
				return nil
			}
			_, err = d.Bus.Emit(ctx, event.InventoryLowStock, level, event.Metadata{
				Source:         "agent:inventory-watch",
				OrganizationID: ev.Metadata.OrganizationID,
			})
			return err
		},
	}, nil
}

// hasLevels reports whether a payload carries both numbers the comparison
// needs. Typed payloads always do; generic maps may leave either out.
func hasLevels(data any) bool {
	m, ok := data.(map[string]any)
	if !ok {
		return true
	}
	_, qty := m["quantity"]
	_, point := m["reorderPoint"]
	return qty && point
}
