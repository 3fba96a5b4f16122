package audithook

// Action constants for audit events.
const (
	// Vault actions
	ActionVaultRegistered = "vault.registered"

	// Subscription actions
	ActionSubscriptionCreated = "subscription.created"
	ActionSubscriptionUpdated = "subscription.updated"
	ActionSubscriptionDeleted = "subscription.deleted"

	// Grant actions
	ActionAccessGranted    = "grant.minted"
	ActionGrantTransferred = "grant.transferred"
	ActionGrantExpired     = "grant.expired"
)

// Resource constants for audit events.
const (
	ResourceVault        = "vault"
	ResourceSubscription = "subscription"
	ResourceGrant        = "grant"
)

// Category constants for audit events.
const (
	CategoryRegistry = "registry"
	CategoryCatalog  = "catalog"
	CategoryAccess   = "access"
	CategoryPayment  = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
