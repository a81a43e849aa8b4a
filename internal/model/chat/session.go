package chat

import "time"

// Session captures one conversation bound to a persona.
// The session id also scopes vector memory, graph context and the trait vector.
type Session struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`
}
