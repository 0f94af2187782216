package auth

// Scopes understood by the progression service.
const (
	ScopeProgressionRead  = "progression:read"
	ScopeProgressionWrite = "progression:write"
)
