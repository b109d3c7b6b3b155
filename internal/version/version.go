// Package version хранит сведения о сборке ordersvc. Значения подставляются
// линкером:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/ordersvc/internal/version.version=v1.4.0 \
//	  -X github.com/vladislavdragonenkov/ordersvc/internal/version.commit=$(git rev-parse HEAD) \
//	  -X github.com/vladislavdragonenkov/ordersvc/internal/version.date=$(date -u +%FT%TZ)" ./cmd/order-service
package version

import "fmt"

// Service — имя сервиса в User-Agent, трейсах и логах.
const Service = "ordersvc"

const (
	devVersion    = "dev"
	unknownCommit = "unknown"
	shortCommit   = 7
)

var (
	version = devVersion
	commit  = unknownCommit
	date    = "unknown"
)

// Build — сведения о текущей сборке.
type Build struct {
	Version string
	Commit  string
	Date    string
}

// Current возвращает сведения, зашитые при сборке.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

// Release сообщает, что версия задана при сборке.
func (b Build) Release() bool {
	return b.Version != "" && b.Version != devVersion
}

// ShortCommit возвращает первые семь символов хеша коммита.
func (b Build) ShortCommit() string {
	if len(b.Commit) > shortCommit && b.Commit != unknownCommit {
		return b.Commit[:shortCommit]
	}
	return b.Commit
}

// UserAgent — значение заголовка User-Agent для исходящих запросов,
// например "ordersvc/v1.4.0 (3f2c1ab)".
func (b Build) UserAgent() string {
	return fmt.Sprintf("%s/%s (%s)", Service, b.Version, b.ShortCommit())
}

// Fields возвращает поля для структурированного лога при старте.
func (b Build) Fields() map[string]any {
	return map[string]any{
		"service":    Service,
		"version":    b.Version,
		"commit":     b.ShortCommit(),
		"build_date": b.Date,
	}
}

func (b Build) String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", Service, b.Version, b.Commit, b.Date)
}
