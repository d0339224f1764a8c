package models

// Credentials is one of EmailPassword, APIKey or SessionToken.
type Credentials interface {
	credentials()
	// Redacted is a log-safe description of the credentials.
	Redacted() string
}

// EmailPassword logs in through POST /api/session.
type EmailPassword struct {
	Email    string
	Password string
}

// APIKey authenticates every request with the X-Api-Key header.
type APIKey struct {
	Key string
}

// SessionToken reuses an existing session id; no login exchange is made.
type SessionToken struct {
	Token string
}

func (EmailPassword) credentials() {}
func (APIKey) credentials()        {}
func (SessionToken) credentials()  {}

func (c EmailPassword) Redacted() string { return "email:" + c.Email }
func (APIKey) Redacted() string          { return "api-key" }
func (SessionToken) Redacted() string    { return "session-token" }
