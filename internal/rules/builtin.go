package rules

import "github.com/gyaneshwarpardhi/opscore/internal/config"

// Builtin returns the rule definitions that ship with opscore. Each call
// returns fresh values.
func Builtin() []config.RuleDef {
	return []config.RuleDef{
		{
			ID:          "lead-converted-opens-opportunity",
			Name:        "Lead conversion opens an opportunity",
			Description: "Marks the lead converted and announces the new opportunity.",
			EventTypes:  []string{"lead:converted"},
			Effects: []config.EffectDef{
				{ID: "mark-lead", Type: "document.merge", Params: map[string]any{
					"collection": "leads",
					"id":         "${payload.leadId}",
					"fields": map[string]any{
						"status":        "converted",
						"opportunityId": "${payload.opportunityId}",
					},
				}},
				{ID: "announce", Type: "emit", Params: map[string]any{
					"type": "opportunity:created",
					"data": map[string]any{
						"opportunityId": "${payload.opportunityId}",
						"leadId":        "${payload.leadId}",
						"stage":         "qualification",
					},
				}},
			},
		},
		{
			ID:          "payment-received-marks-invoice-paid",
			Name:        "Payment marks invoice paid",
			Description: "Settles the invoice a received payment refers to.",
			EventTypes:  []string{"payment:received"},
			When:        "payload.invoiceId != ''",
			Effects: []config.EffectDef{
				{ID: "settle", Type: "document.merge", Params: map[string]any{
					"collection": "invoices",
					"id":         "${payload.invoiceId}",
					"fields": map[string]any{
						"status":    "paid",
						"paymentId": "${payload.paymentId}",
					},
				}},
				{ID: "announce", Type: "emit", Params: map[string]any{
					"type": "invoice:paid",
					"data": map[string]any{
						"invoiceId": "${payload.invoiceId}",
						"projectId": "${payload.projectId?}",
						"paymentId": "${payload.paymentId}",
						"amount":    "${payload.amount}",
					},
				}},
			},
		},
		{
			ID:          "invoice-paid-updates-project",
			Name:        "Paid invoice updates its project",
			Description: "Records the payment on the project the invoice belongs to.",
			EventTypes:  []string{"invoice:paid"},
			When:        "payload.projectId exists AND payload.projectId != ''",
			Effects: []config.EffectDef{
				{ID: "mark-project", Type: "document.merge", Params: map[string]any{
					"collection": "projects",
					"id":         "${payload.projectId}",
					"fields": map[string]any{
						"invoiceStatus": "paid",
						"lastInvoiceId": "${payload.invoiceId}",
					},
				}},
				{ID: "amount-paid", Type: "counter.increment", Params: map[string]any{
					"collection": "projects",
					"id":         "${payload.projectId}",
					"field":      "amountPaid",
					"by":         "${payload.amount}",
				}},
			},
		},
		{
			ID:          "opportunity-won-pipeline-total",
			Name:        "Won opportunities roll up into the pipeline total",
			Description: "Keeps the denormalised won count and value current.",
			EventTypes:  []string{"opportunity:won"},
			Effects: []config.EffectDef{
				{ID: "won-value", Type: "counter.increment", Params: map[string]any{
					"collection": "pipeline",
					"id":         "totals",
					"field":      "wonValue",
					"by":         "${payload.value}",
				}},
				{ID: "won-count", Type: "counter.increment", Params: map[string]any{
					"collection": "pipeline",
					"id":         "totals",
					"field":      "wonCount",
				}},
			},
		},
	}
}
