package http

import (
	"go.uber.org/fx"

	audittransport "github.com/Additional-Code/tally/internal/transport/http/audit"
	ordertransport "github.com/Additional-Code/tally/internal/transport/http/order"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	audittransport.Module,
)
