package models

import "time"

// TurnRecord is one completed question/answer exchange as written to
// turn_history.
type TurnRecord struct {
	ID            string
	SessionID     string
	Mode          string
	Persona       string
	UserMessage   string
	Reply         string
	Grounded      bool
	DocumentCount int
	LatencyMS     int
	CreatedAt     time.Time
}
