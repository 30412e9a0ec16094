package sensor

import (
	"context"

	"github.com/afroash/hydro-monitor/internal/models"
)

// DHTSource adapts a DHTSensor to the poller's Source interface
type DHTSource struct {
	sensor DHTSensor
}

// NewDHTSource wraps sensor as a reading source
func NewDHTSource(sensor DHTSensor) *DHTSource {
	return &DHTSource{sensor: sensor}
}

// Name identifies the source in logs and metrics
func (s *DHTSource) Name() string {
	return "dht11"
}

// Fetch reads the sensor once. A DHT11 read blocks for a few milliseconds
// and cannot be interrupted, so ctx is only checked before starting.
func (s *DHTSource) Fetch(ctx context.Context) (models.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	temperature, humidity, err := s.sensor.Read()
	if err != nil {
		return nil, err
	}

	return models.Batch{
		"temperature": temperature,
		"humidity":    humidity,
	}, nil
}

// Close releases the sensor
func (s *DHTSource) Close() error {
	return s.sensor.Close()
}
