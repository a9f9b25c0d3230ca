package domain

import "time"

// Account holds identity plus monetary state. Balance is integer minor units
// and is only ever mutated through the ledger repository.
type Account struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	Balance      int64      `json:"balance"`
	PasswordHash string     `json:"-"`
	PINHash      *string    `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

func (a *Account) HasPIN() bool {
	return a.PINHash != nil && *a.PINHash != ""
}
