// Package queue defines message payloads exchanged over the message broker
// together with the RabbitMQ publisher and consumer that carry them.
package queue

// DefaultQueueName is the durable queue registration confirmations go to.
const DefaultQueueName = "registration.confirmed"

// RegistrationConfirmedEvent is published once a registration has been
// committed.  It carries enough detail for downstream consumers to log or
// notify without querying the primary database.
type RegistrationConfirmedEvent struct {
	RegistrationID string `json:"registration_id"`
	TicketID       string `json:"ticket_id"`
	EventID        string `json:"event_id"`
	EventTitle     string `json:"event_title"`
	Venue          string `json:"venue"`
	EventStarts    string `json:"event_starts"`
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	PaymentStatus  string `json:"payment_status"`
	Price          string `json:"price"`
	RegisteredAt   string `json:"registered_at"`
}
