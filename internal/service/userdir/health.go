package userdir

import "github.com/vladislavdragonenkov/ordersvc/internal/health"

// HealthChecker сообщает degraded, пока breaker отклоняет вызовы справочника.
// Сервис при этом продолжает работать на деградированных записях.
func HealthChecker(r *Resolver) health.Checker {
	return health.NewStateChecker("user-directory", func() (health.Status, string) {
		if r.CircuitOpen() {
			return health.StatusDegraded, "circuit breaker is open, serving fallback identities"
		}
		return health.StatusHealthy, ""
	})
}
