package http

import (
	natsadapter "github.com/samirrijal/eudrsat/internal/adapters/nats"
	"github.com/samirrijal/eudrsat/internal/adapters/postgres"
	"github.com/samirrijal/eudrsat/internal/adapters/valkey"
	"github.com/samirrijal/eudrsat/internal/core/ports"
	"github.com/samirrijal/eudrsat/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers. Infrastructure
// fields may be nil; readiness reports them as not configured.
type Dependencies struct {
	Areas   *usecases.AreaService
	Imagery *usecases.ImageryService
	Cycles  *usecases.CycleService
	Events  ports.EventSubscriber
	Broker  *natsadapter.Publisher
	DB      *postgres.DB
	Cache   *valkey.Cache
	Version string
}
