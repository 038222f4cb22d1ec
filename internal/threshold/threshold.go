// Package threshold evaluates metric values against configured warning and
// critical thresholds.
package threshold

import (
	"fmt"

	"fleetwatch/internal/model"
)

// Check is the outcome of evaluating a single metric against its thresholds.
type Check struct {
	ShouldAlert bool
	Severity    model.AlertSeverity
	Message     string
}

// Evaluate compares a metric value against a warning and a critical
// threshold. Critical wins when both are breached. Comparisons are
// inclusive: a value exactly at a threshold breaches it.
func Evaluate(resource string, value, warn, crit float64) Check {
	switch {
	case value >= crit:
		return Check{
			ShouldAlert: true,
			Severity:    model.SeverityCritical,
			Message:     fmt.Sprintf("%s usage critical: %.1f%% (threshold: %g%%)", resource, value, crit),
		}
	case value >= warn:
		return Check{
			ShouldAlert: true,
			Severity:    model.SeverityWarning,
			Message:     fmt.Sprintf("%s usage high: %.1f%% (threshold: %g%%)", resource, value, warn),
		}
	default:
		return Check{}
	}
}

// EvaluateDisk is Evaluate for a named volume, with the volume name in the
// message instead of a generic resource label.
func EvaluateDisk(volume string, usedPct, warn, crit float64) Check {
	switch {
	case usedPct >= crit:
		return Check{
			ShouldAlert: true,
			Severity:    model.SeverityCritical,
			Message:     fmt.Sprintf("Disk %s is %.1f%% full (Critical > %g%%)", volume, usedPct, crit),
		}
	case usedPct >= warn:
		return Check{
			ShouldAlert: true,
			Severity:    model.SeverityWarning,
			Message:     fmt.Sprintf("Disk %s is %.1f%% full (Warning > %g%%)", volume, usedPct, warn),
		}
	default:
		return Check{}
	}
}

// DetermineStatus maps the current CPU, memory and aggregate disk readings to
// an overall server health status. disk may be nil when no volumes were
// sampled. Any critical breach makes the server Critical, any warning breach
// makes it Warning, otherwise it is Online.
func DetermineStatus(cpu, mem float64, disk *float64, t model.Thresholds) model.ServerStatus {
	if cpu >= t.CPUCritical || mem >= t.MemoryCritical || (disk != nil && *disk >= t.DiskCritical) {
		return model.StatusCritical
	}
	if cpu >= t.CPUWarning || mem >= t.MemoryWarning || (disk != nil && *disk >= t.DiskWarning) {
		return model.StatusWarning
	}
	return model.StatusOnline
}
