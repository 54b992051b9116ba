package device

import "go.uber.org/fx"

// Module provides the device repository to Fx.
var Module = fx.Provide(NewRepository)
