package service

import (
	"strings"

	"github.com/google/uuid"
)

// NewTicketID returns a human facing ticket code: "TICKET-" followed by the
// first eight hex characters of a random UUID, upper-cased.
func NewTicketID() string {
	return "TICKET-" + strings.ToUpper(uuid.NewString()[:8])
}
