package ir

// Version constants for persisted state and the driver itself.
const (
	// GraphFormatVersion is the version of the persisted dependency graph
	// snapshot. Bump it whenever the snapshot encoding changes incompatibly;
	// a mismatch forces a full rebuild instead of a misread.
	GraphFormatVersion = 3

	// DriverVersion is the swiftdriver release version.
	DriverVersion = "0.4.0"
)
