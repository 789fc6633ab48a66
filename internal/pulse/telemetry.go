package pulse

import (
	"context"

	"go.uber.org/zap"

	"github.com/routefleet/routefleet/internal/metrics"
	"github.com/routefleet/routefleet/internal/scripts"
)

// signalFields are the numeric readings extracted from signal script output.
var signalFields = []string{"rssi", "rsrp", "rsrq", "sinr"}

// SignalCollector turns parsed signal script output into telemetry points.
// Shared between the poller's recovery deep poll and on-demand script runs.
type SignalCollector struct {
	metrics *metrics.Store
	logger  *zap.Logger
}

// NewSignalCollector creates a collector writing to the given metrics store.
func NewSignalCollector(store *metrics.Store, logger *zap.Logger) *SignalCollector {
	return &SignalCollector{metrics: store, logger: logger}
}

// RecordSignal writes one signal point for a device. Non-numeric readings
// ("none", empty) are dropped field by field; a sample with no usable
// numbers writes nothing. Operator and band ride along as tags.
func (c *SignalCollector) RecordSignal(ctx context.Context, deviceID string, kv *scripts.KV) {
	point := metrics.Point{
		Measurement: metrics.MeasurementSignal,
		DeviceID:    deviceID,
		Tags: map[string]string{
			"operator": kv.GetOr("operator", "unknown"),
			"band":     kv.GetOr("band", "unknown"),
		},
		Fields: make(map[string]float64, len(signalFields)),
	}
	for _, f := range signalFields {
		if v, ok := kv.Float(f); ok {
			point.Fields[f] = v
		}
	}
	if len(point.Fields) == 0 {
		c.logger.Debug("signal sample had no numeric fields", zap.String("device_id", deviceID))
		return
	}
	if err := c.metrics.WritePoint(ctx, point); err != nil {
		c.logger.Warn("failed to write signal point", zap.String("device_id", deviceID), zap.Error(err))
	}
}
