package counter

// Counter tracks one item's stock for one location and day. OnHand is
// derived, never stored.
type Counter struct {
	Date             string `json:"date"`
	ItemID           int64  `json:"itemId"`
	LocationID       int64  `json:"locationId"`
	StartQuantity    int    `json:"startQuantity"`
	SoldQuantity     int    `json:"soldQuantity"`
	ManualAdjustment int    `json:"manualAdjustment"`
	ClosedOn         *int64 `json:"closedOn,omitempty"`
}

// OnHand returns the derived on-hand quantity.
func (c *Counter) OnHand() int {
	return c.StartQuantity - c.SoldQuantity + c.ManualAdjustment
}

// ApplyOutcome tags the result of applying a template to a date.
type ApplyOutcome string

const (
	// OutcomeApplied: counters were written.
	OutcomeApplied ApplyOutcome = "applied"
	// OutcomeAlreadyApplied: every template line already matches; zero writes.
	OutcomeAlreadyApplied ApplyOutcome = "already_applied"
	// OutcomeTemplateNotFound: the template id does not exist.
	OutcomeTemplateNotFound ApplyOutcome = "template_not_found"
	// OutcomeEmptyTemplate: the template exists but has no lines.
	OutcomeEmptyTemplate ApplyOutcome = "empty_template"
)

// ApplyResult reports what applying a template did.
type ApplyResult struct {
	Outcome      ApplyOutcome `json:"outcome"`
	TemplateID   int64        `json:"templateId,omitempty"`
	TemplateName string       `json:"templateName,omitempty"`
	AppliedDate  string       `json:"appliedDate,omitempty"`
	ItemCount    int          `json:"itemCount,omitempty"`
}
