package model

import "time"

// Outcome is the per-connection result of a dispatch.
type Outcome string

const (
	// OutcomeDelivered means the send completed within its deadline.
	OutcomeDelivered Outcome = "delivered"

	// OutcomeFailed means the send errored, timed out, or was skipped
	// because the connection closed mid-dispatch.
	OutcomeFailed Outcome = "failed"
)

// Delivery records what happened for one subscriber.
type Delivery struct {
	ConnectionID string  `json:"connectionId"`
	Outcome      Outcome `json:"outcome"`
	Err          error   `json:"-"`
}

// DeliveryReport has exactly one entry per connection in the topic snapshot
// taken at publish time.
type DeliveryReport struct {
	Topic      string        `json:"topic"`
	MessageID  string        `json:"messageId"`
	Deliveries []Delivery    `json:"deliveries"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
}

// NewDeliveryReport creates an empty report for a dispatch of msg to topic.
func NewDeliveryReport(topic string, msg Message, size int) *DeliveryReport {
	return &DeliveryReport{
		Topic:      topic,
		MessageID:  msg.ID,
		Deliveries: make([]Delivery, 0, size),
		StartedAt:  time.Now(),
	}
}

// Len returns the number of entries.
func (r *DeliveryReport) Len() int {
	return len(r.Deliveries)
}

// Delivered counts successful entries.
func (r *DeliveryReport) Delivered() int {
	return r.count(OutcomeDelivered)
}

// Failed counts failed entries.
func (r *DeliveryReport) Failed() int {
	return r.count(OutcomeFailed)
}

// FailedIDs lists the connection ids whose send failed.
func (r *DeliveryReport) FailedIDs() []string {
	ids := make([]string, 0)
	for _, d := range r.Deliveries {
		if d.Outcome == OutcomeFailed {
			ids = append(ids, d.ConnectionID)
		}
	}
	return ids
}

// OutcomeOf returns the outcome recorded for id and whether id is in the report.
func (r *DeliveryReport) OutcomeOf(id string) (Outcome, bool) {
	for _, d := range r.Deliveries {
		if d.ConnectionID == id {
			return d.Outcome, true
		}
	}
	return "", false
}

func (r *DeliveryReport) count(o Outcome) int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Outcome == o {
			n++
		}
	}
	return n
}
