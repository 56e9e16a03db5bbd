package ir

// Version constants.
const (
	// KeyVersion is bumped whenever the plan key encoding changes.
	KeyVersion = "1"

	// EngineVersion is the beanplan engine version.
	EngineVersion = "0.1.0"
)
