package shared

// IntentKind names the counterparty balance effect a check operation implies
type IntentKind string

const (
	IntentCheckCleared       IntentKind = "CHECK_CLEARED"
	IntentDebtReopened       IntentKind = "DEBT_REOPENED"
	IntentDebtCovered        IntentKind = "DEBT_COVERED"
	IntentLegalEscalated     IntentKind = "LEGAL_ESCALATED"
	IntentSettlementLinked   IntentKind = "SETTLEMENT_LINKED"
	IntentSettlementReversed IntentKind = "SETTLEMENT_REVERSED"
)

// IntentStatus tracks delivery of an intent to the ledger collaborator
type IntentStatus string

const (
	IntentStatusPublished    IntentStatus = "PUBLISHED"
	IntentStatusDeadLettered IntentStatus = "DEAD_LETTERED"
)

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)
