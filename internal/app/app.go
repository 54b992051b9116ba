package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/tally/internal/cache"
	"github.com/Additional-Code/tally/internal/config"
	"github.com/Additional-Code/tally/internal/database"
	"github.com/Additional-Code/tally/internal/inflight"
	"github.com/Additional-Code/tally/internal/logger"
	"github.com/Additional-Code/tally/internal/messaging"
	"github.com/Additional-Code/tally/internal/observability"
	repositorydevice "github.com/Additional-Code/tally/internal/repository/device"
	repositoryorder "github.com/Additional-Code/tally/internal/repository/order"
	grpcserver "github.com/Additional-Code/tally/internal/server/grpc"
	httpserver "github.com/Additional-Code/tally/internal/server/http"
	serviceaudit "github.com/Additional-Code/tally/internal/service/audit"
	serviceorder "github.com/Additional-Code/tally/internal/service/order"
	transporthttp "github.com/Additional-Code/tally/internal/transport/http"
	"github.com/Additional-Code/tally/internal/worker"
	workeraudit "github.com/Additional-Code/tally/internal/worker/audit"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	inflight.Module,
	repositoryorder.Module,
	repositorydevice.Module,
	serviceorder.Module,
	serviceaudit.Module,
)

// Server wires the HTTP and gRPC transports on top of the core modules.
var Server = fx.Options(
	Core,
	fx.Provide(func(c *database.Connections) httpserver.Pinger { return c }),
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workeraudit.Module,
)

// Module is the default application wiring.
var Module = Server
