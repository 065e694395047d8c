package agents

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/opscore/internal/agent"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
)

// newInvoiceNotifier queues a customer notification when an invoice is
// sent or paid. Delivery belongs to the mail integration reading the
// notifications collection. Disabled by default.
//
//	channel: delivery channel recorded on the notification (default "email")
func newInvoiceNotifier(d Deps, params map[string]any) (agent.Definition, error) {
	channel, err := stringParam(params, "channel", "email")
	if err != nil {
		return agent.Definition{}, err
	}
	return agent.Definition{
		ID:          "invoice-notifier",
		Name:        "Invoice notifier",
		Description: "Queues customer notifications for sent and paid invoices.",
		EventTypes:  []event.Type{event.InvoiceSent, event.InvoicePaid},
		Enabled:     false,
		Handler: func(ctx context.Context, ev event.Event) error {
			note := map[string]any{
				"channel":   channel,
				"status":    "queued",
				"eventType": string(ev.Type),
				"createdAt": ev.Timestamp,
			}
			switch ev.Type {
			case event.InvoiceSent:
				inv, err := event.As[event.Invoice](ev.Data)
				if err != nil {
					return err
				}
				note["template"] = "invoice-sent"
				note["invoiceId"] = inv.InvoiceID
				note["recipient"] = firstNonEmpty(inv.Email, inv.CustomerID)
				note["total"] = inv.Total
			case event.InvoicePaid:
				paid, err := event.As[event.InvoicePayment](ev.Data)
				if err != nil {
					return err
				}
				note["template"] = "invoice-paid"
				note["invoiceId"] = paid.InvoiceID
				note["recipient"] = paid.CustomerID
				note["amount"] = paid.Amount
			default:
				return fmt.Errorf("unexpected event type %s", ev.Type)
			}
			// Keyed by event id, so a repeated event rewrites the same notification.
			return d.Store.Merge(ctx, "notifications", ev.ID, note)
		},
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
