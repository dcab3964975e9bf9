package ir

// Version constants for scenario documents and recorded traces.
const (
	// IRVersion is the scenario document schema version.
	IRVersion = "1"

	// EngineVersion is the scheduler version stamped on recorded runs.
	EngineVersion = "0.1.0"
)
