package scheduling

import "fmt"

// CardRequest is the card created for one schedule invocation.
type CardRequest struct {
	Title       string
	Description string
}

// NewCardRequest derives the card from a schedule invocation: the title is
// the session type verbatim, the description lists host, co-host and time
// one per line.
func NewCardRequest(s Schedule) CardRequest {
	return CardRequest{
		Title:       s.Type,
		Description: fmt.Sprintf("Host: %s\nCo-Host: %s\nTime: %s", s.Host, s.Cohost, s.Time),
	}
}

// Card is what the card service returned for a created card.
type Card struct {
	ID       string
	ShortURL string
}
