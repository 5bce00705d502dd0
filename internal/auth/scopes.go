package auth

// Known OAuth scopes used by the plan sync service.
const (
	ScopePlansRead   = "plans:read"
	ScopePlansWrite  = "plans:write"
	ScopeSyncExecute = "sync:execute"
)
