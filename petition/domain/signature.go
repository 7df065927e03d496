package domain

import "time"

// Submission são os campos brutos recebidos do cliente.
type Submission struct {
	Name     string
	Email    string
	City     string
	Region   string
	Role     string
	Message  string
	Token    string
	Redirect string
	// RemoteIP vai para o verificador anti-bot.
	RemoteIP string
	// Fingerprint é derivado do IP pelo adapter HTTP.
	Fingerprint string
}

// Candidate é uma assinatura validada e normalizada, ainda sem id/horário.
type Candidate struct {
	Name        string
	Email       string
	City        string
	Region      string
	Role        string
	Message     string
	Fingerprint string
}

// Signature é o registro durável de uma assinatura.
type Signature struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	City        string    `json:"city"`
	Region      string    `json:"region"`
	Role        string    `json:"role,omitempty"`
	Message     string    `json:"message,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	// Fingerprint nunca sai para o cliente; os stores persistem por campo próprio.
	Fingerprint string `json:"-"`
}

// NewSignature completa o candidato com id e horário do store.
func NewSignature(c Candidate, id string, at time.Time) Signature {
	return Signature{
		ID:          id,
		Name:        c.Name,
		Email:       c.Email,
		City:        c.City,
		Region:      c.Region,
		Role:        c.Role,
		Message:     c.Message,
		SubmittedAt: at,
		Fingerprint: c.Fingerprint,
	}
}

// PutResult é o resultado de SignatureStore.Put.
// Created=false significa que o e-mail já existia; Signature é o registro original.
type PutResult struct {
	Signature Signature
	Created   bool
}

// Snapshot é a visão derivada (possivelmente defasada) das contagens.
type Snapshot struct {
	Total      int64
	ByRegion   map[string]int64
	ComputedAt time.Time
}
