package driven

import (
	"context"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// ScriptEngine is the execution port for user-authored transform scripts.
// Implementations are capability-restricted: no ambient network or filesystem
// access, bounded execution time, one synchronous call per invocation.
//
// Determinism is a hard requirement for summary and blocking-key scripts:
// identical input must always yield identical output, because blocking-key
// equality drives irrevocable duplicate-detection decisions.
type ScriptEngine interface {
	// Compile checks the source and produces the persisted module pair.
	// The compiled form is what Execute actually loads; the source stays
	// editable.
	Compile(source string) (domain.ScriptModule, error)

	// Execute runs the module with the given arguments and returns the
	// script's return value converted to plain Go values (nil, bool, float64,
	// string, []any, map[string]any). Failures are *domain.ScriptError with
	// a machine-readable kind; a script-level error never escapes uncaught.
	Execute(ctx context.Context, module domain.ScriptModule, args ...any) (any, error)
}
