package domain

import "time"

// Session is a bearer credential authorizing API calls as a given account.
type Session struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"account_id"`
	Token      string     `json:"-"`
	DeviceID   *string    `json:"device_id,omitempty"`
	IPAddress  *string    `json:"ip_address,omitempty"`
	UserAgent  *string    `json:"user_agent,omitempty"`
	IsRevoked  bool       `json:"is_revoked"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

func (s *Session) Usable(now time.Time) bool {
	return !s.IsRevoked && now.Before(s.ExpiresAt)
}

// DeviceInfo is the request metadata captured when a session is issued.
type DeviceInfo struct {
	DeviceID  string
	IPAddress string
	UserAgent string
}
