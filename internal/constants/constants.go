// Package constants provides named constants used throughout flightbreak.
// This centralizes the circuit breaker policy numbers and tool defaults.
package constants

// Circuit breaker policy constants
const (
	// SmallBreakWeeks is the break length triggered by a small trigger
	// (5 to 9 positive cases on an inbound flight).
	SmallBreakWeeks = 2

	// BigBreakWeeks is the break length triggered by a big trigger
	// (10 to 29 positive cases on an inbound flight).
	BigBreakWeeks = 4

	// OnsetDelay is the minimum number of weeks between a trigger and the
	// earliest week its break window may start.
	OnsetDelay = 3

	// EscalationWindow is the length of the immediate break imposed when
	// big triggers repeat back to back.
	EscalationWindow = 8

	// MaxBreakWindow is the padding added past the horizon so that windows
	// opened near the last week never write out of bounds.
	MaxBreakWindow = 10
)

// Simulation defaults
const (
	// DefaultWeeks is the default simulation horizon in weeks.
	DefaultWeeks = 15

	// DefaultSimulations is the default number of Monte Carlo runs.
	DefaultSimulations = 10000

	// DefaultSmallProbability is the default per-week small trigger probability.
	DefaultSmallProbability = 0.5

	// DefaultBigProbability is the default per-week big trigger probability.
	DefaultBigProbability = 0.2

	// MinChartWeeks is the smallest horizon the chart form accepts.
	MinChartWeeks = 3
)

// Calendar constants
const (
	// DateLayout is the layout used for dates on the command line and in config files.
	DateLayout = "2006-01-02"

	// DefaultFirstDate is the week zero date used when none is configured.
	DefaultFirstDate = "2022-04-01"

	// DaysPerWeek is the cadence between consecutive week indexes.
	DaysPerWeek = 7
)

// Workspace layout
const (
	// DirName is the per-project state directory.
	DirName = ".flightbreak"

	// DBFileName is the run history database inside DirName.
	DBFileName = "flightbreak.db"

	// RunLogFileName is the JSONL run log written at debug level.
	RunLogFileName = "runs.jsonl"

	// AuditLogFileName is the JSONL audit log for MCP tool calls.
	AuditLogFileName = "audit.jsonl"

	// ConfigFileName is the user config file inside ~/.flightbreak.
	ConfigFileName = "config.yaml"
)

// MCP tool rate limits
const (
	// ToolRatePerSecond is the sustained token refill rate per tool.
	ToolRatePerSecond = 2.0

	// ToolBurst is the number of calls allowed back to back per tool.
	ToolBurst = 10

	// MaxToolSimulations caps estimate_probabilities requests from MCP clients.
	MaxToolSimulations = 200000

	// MaxToolWeeks caps the horizon requested from MCP clients.
	MaxToolWeeks = 520

	// ToolWorkPerSecond is the refill rate of the shared simulation budget,
	// measured in simulated weeks (runs times horizon).
	ToolWorkPerSecond = 10_000_000

	// ToolWorkBurst is the simulation budget available at once. It admits a
	// single request at both caps.
	ToolWorkBurst = MaxToolSimulations * MaxToolWeeks
)
