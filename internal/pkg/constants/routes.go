package constants

// Route prefixes
const (
	APIRoute      = "/api"
	WebhooksRoute = "/api/webhooks"
	InternalRoute = "/api/internal"
)
