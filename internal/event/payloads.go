package event

import "time"

// Startup is the payload of system:startup.
type Startup struct {
	Agents        int `json:"agents"`
	Rules         int `json:"rules"`
	Subscriptions int `json:"subscriptions"`
}

// Shutdown is the payload of system:shutdown.
type Shutdown struct {
	Reason string `json:"reason,omitempty"`
}

// Tick is emitted by the scheduler when a cron schedule is due.
type Tick struct {
	Schedule string         `json:"schedule"`
	At       time.Time      `json:"at"`
	Data     map[string]any `json:"data,omitempty"`
}

// Lead is the payload of lead:created.
type Lead struct {
	LeadID  string  `json:"leadId"`
	Name    string  `json:"name,omitempty"`
	Company string  `json:"company,omitempty"`
	Email   string  `json:"email,omitempty"`
	Score   float64 `json:"score"`
	OwnerID string  `json:"ownerId,omitempty"`
}

// Conversion is the payload of lead:converted.
type Conversion struct {
	LeadID        string `json:"leadId"`
	OpportunityID string `json:"opportunityId"`
	AccountID     string `json:"accountId,omitempty"`
}

// Opportunity is the payload of opportunity:created and opportunity:won.
type Opportunity struct {
	OpportunityID string  `json:"opportunityId"`
	LeadID        string  `json:"leadId,omitempty"`
	AccountID     string  `json:"accountId,omitempty"`
	Stage         string  `json:"stage,omitempty"`
	Value         float64 `json:"value"`
}

// Quote is the payload of quote:accepted.
type Quote struct {
	QuoteID       string  `json:"quoteId"`
	OpportunityID string  `json:"opportunityId,omitempty"`
	Total         float64 `json:"total"`
}

// Invoice is the payload of invoice:created and invoice:sent.
type Invoice struct {
	InvoiceID  string    `json:"invoiceId"`
	ProjectID  string    `json:"projectId,omitempty"`
	CustomerID string    `json:"customerId,omitempty"`
	Email      string    `json:"email,omitempty"`
	Total      float64   `json:"total"`
	Currency   string    `json:"currency,omitempty"`
	DueDate    time.Time `json:"dueDate,omitzero"`
}

// InvoicePayment is the payload of invoice:paid.
type InvoicePayment struct {
	InvoiceID  string  `json:"invoiceId"`
	ProjectID  string  `json:"projectId,omitempty"`
	CustomerID string  `json:"customerId,omitempty"`
	PaymentID  string  `json:"paymentId,omitempty"`
	Amount     float64 `json:"amount"`
}

// Payment is the payload of payment:received, reported by the billing provider.
type Payment struct {
	PaymentID string  `json:"paymentId"`
	InvoiceID string  `json:"invoiceId"`
	ProjectID string  `json:"projectId,omitempty"`
	Amount    float64 `json:"amount"`
	Provider  string  `json:"provider,omitempty"`
}

// StockLevel is the payload of inventory:updated and inventory:low-stock.
type StockLevel struct {
	SKU          string  `json:"sku"`
	Location     string  `json:"location,omitempty"`
	Quantity     float64 `json:"quantity"`
	ReorderPoint float64 `json:"reorderPoint"`
}

// Employee is the payload of employee:onboarded.
type Employee struct {
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name,omitempty"`
	Department string `json:"department,omitempty"`
	ManagerID  string `json:"managerId,omitempty"`
}
