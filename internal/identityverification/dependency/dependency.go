// Package dependency enforces process ordering against an application's
// execution history.
package dependency

import (
	"fmt"
	"strings"

	"idverify/internal/identityverification/models"
	platformstrings "idverify/pkg/platform/strings"
)

// Check returns the ordering violations for running process given the
// processes that already completed. A nil deps means no prerequisites and
// no retry.
func Check(process string, deps *models.Dependencies, completed map[string]bool) []string {
	if deps == nil {
		deps = &models.Dependencies{}
	}

	var msgs []string
	var missing []string
	for _, required := range platformstrings.DedupeAndTrim(deps.RequiredProcesses) {
		if !completed[required] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		msgs = append(msgs, fmt.Sprintf("Process '%s' requires completion of: %s", process, strings.Join(missing, ", ")))
	}
	if completed[process] && !deps.AllowRetry {
		msgs = append(msgs, fmt.Sprintf("Process '%s' does not allow retry and has already been executed", process))
	}
	return msgs
}
