// Package sensor reads a locally attached DHT11 as a reading source.
package sensor

import (
	"fmt"

	"github.com/afroash/dht"
)

// DHTSensor defines the interface for reading from a DHT sensor
type DHTSensor interface {
	// Read performs a single reading from the sensor
	// Returns temperature (°C), humidity (%), and any error
	Read() (temperature float64, humidity float64, err error)

	// Close cleans up GPIO resources
	Close() error
}

// DHT11Reader implements DHTSensor for DHT11 hardware
type DHT11Reader struct {
	pin        int
	maxRetries int
	sensor     *dht.Sensor
}

// NewDHT11Reader opens the DHT11 on the given GPIO pin
func NewDHT11Reader(pin int) (*DHT11Reader, error) {
	sensor, err := dht.NewDHT11(pin)
	if err != nil {
		return nil, fmt.Errorf("failed to open DHT11 on GPIO %d: %w", pin, err)
	}
	return &DHT11Reader{
		pin:        pin,
		maxRetries: 3,
		sensor:     sensor,
	}, nil
}

// Read performs a reading from the DHT11 sensor with retry logic
func (d *DHT11Reader) Read() (float64, float64, error) {
	reading, err := d.sensor.ReadRetry(d.maxRetries)
	if err != nil {
		return 0, 0, fmt.Errorf("after %d retries, failed to read from sensor: %w", d.maxRetries, err)
	}
	if err := validateReading(reading.Temperature, reading.Humidity); err != nil {
		return 0, 0, fmt.Errorf("invalid reading: %w", err)
	}

	return reading.Temperature, reading.Humidity, nil
}

// Close cleans up GPIO resources
func (d *DHT11Reader) Close() error {
	return d.sensor.Close()
}

// validateReading rejects values outside what a DHT11 can report
func validateReading(temp, humidity float64) error {
	const (
		minTemp     = -20.0
		maxTemp     = 60.0
		minHumidity = 0.0
		maxHumidity = 100.0
	)
	if temp < minTemp || temp > maxTemp {
		return fmt.Errorf("temperature %.1f°C outside sensor range %.0f to %.0f", temp, minTemp, maxTemp)
	}
	if humidity < minHumidity || humidity > maxHumidity {
		return fmt.Errorf("humidity %.1f%% outside sensor range %.0f to %.0f", humidity, minHumidity, maxHumidity)
	}
	return nil
}
