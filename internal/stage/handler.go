package stage

import "context"

// Checker is implemented by adapters that can report their readiness.
type Checker interface {
	HealthCheck(context.Context) Health
}

// CheckAll collects health records from every checker in order.
func CheckAll(ctx context.Context, checkers ...Checker) []Health {
	out := make([]Health, 0, len(checkers))
	for _, checker := range checkers {
		if checker == nil {
			continue
		}
		out = append(out, checker.HealthCheck(ctx))
	}
	return out
}

// AllReady reports whether every record is ready.
func AllReady(records []Health) bool {
	for _, record := range records {
		if !record.Ready {
			return false
		}
	}
	return true
}
