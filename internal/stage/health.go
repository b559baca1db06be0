package stage

import "context"

// Health summarizes the readiness of a pipeline component.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Checker is implemented by components that can report readiness.
type Checker interface {
	HealthCheck(ctx context.Context) Health
}

// CheckAll runs every checker in order.
func CheckAll(ctx context.Context, checkers ...Checker) []Health {
	results := make([]Health, 0, len(checkers))
	for _, c := range checkers {
		if c == nil {
			continue
		}
		results = append(results, c.HealthCheck(ctx))
	}
	return results
}
