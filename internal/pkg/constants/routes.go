package constants

// Route constants
const (
	WebhooksGroup           = "/webhooks"
	MercadoLivreWebhookPath = "/mercadolivre"
	// full path, as registered in the marketplace application settings
	MercadoLivreWebhookRoute = WebhooksGroup + MercadoLivreWebhookPath

	AdminGroup             = "/admin"
	AdminWebhookStatusPath = "/webhooks/status"
	AdminWebhookFlushPath  = "/webhooks/flush"
	MetricsRoute           = "/metrics"
	HealthRoute            = "/healthz"
	ReadyRoute             = "/readyz"
)
