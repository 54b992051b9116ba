package audit

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tally/internal/config"
	"github.com/Additional-Code/tally/internal/messaging"
	"github.com/Additional-Code/tally/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/tally/worker/audit")

// Module registers audit worker handlers.
var Module = fx.Module("worker_audit",
	fx.Provide(
		fx.Annotate(
			NewAssetCheckHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewAssetCheckHandler consumes asset check changes and writes them to the
// audit trail log.
func NewAssetCheckHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	trail := logger.Named("audit_trail")

	handler := func(ctx context.Context, msg messaging.Message) error {
		_, span := workerTracer.Start(ctx, "worker.audit.asset_check", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		event, err := messaging.DecodeAssetCheckChanged(msg)
		if err != nil {
			logger.Error("failed to decode asset check event", zap.Error(err), zap.Int64("offset", msg.Offset))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(
			attribute.Int64("device.id", event.DeviceID),
			attribute.String("device.asset_check", event.AssetCheck),
		)

		trail.Info("asset check changed",
			zap.Int64("device_id", event.DeviceID),
			zap.String("serial_number", event.SerialNumber),
			zap.String("warehouse", event.Warehouse),
			zap.String("asset_check", event.AssetCheck),
			zap.String("updated_by", event.UpdatedBy),
			zap.Time("updated_at", event.UpdatedAt),
			zap.String("source", event.Source),
		)
		return nil
	}

	return worker.HandlerRegistration{
		Topic:     cfg.Messaging.Kafka.Topic,
		EventType: messaging.EventAssetCheckChanged,
		Handler:   handler,
	}
}
