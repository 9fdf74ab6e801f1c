package ir

// Version constants for persisted records and the constant tables.
const (
	// SchemaVersion is the record schema version written to the ledger.
	SchemaVersion = "1"

	// TablesVersion identifies the constant tables shipped in the config schema.
	TablesVersion = "2024.1"

	// EngineVersion is the codex engine version.
	EngineVersion = "0.1.0"
)
