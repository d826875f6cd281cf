package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pvplanner/pvplanner/openmeteo"
	"github.com/pvplanner/pvplanner/predictor"
)

// Config represents the configuration for the forecast pipeline
type Config struct {
	// Plant location
	Latitude  float64 `json:"latitude"`  // Latitude of the installation
	Longitude float64 `json:"longitude"` // Longitude of the installation
	Timezone  string  `json:"timezone"`  // IANA timezone of the installation (e.g. "Europe/Warsaw")

	// Weather fetch settings
	ForecastDays int           `json:"forecast_days"` // Forecast look-ahead window in days
	PastDays     int           `json:"past_days"`     // Past days included in the forecast request
	FetchRetries int           `json:"fetch_retries"` // Retry count for weather API calls
	FetchBackoff time.Duration `json:"fetch_backoff"` // Initial backoff between retries
	UserAgent    string        `json:"user_agent"`    // User agent for weather API client

	// Store settings
	PostgresConnString string `json:"postgres_conn_string"` // PostgreSQL connection string
	ObjectID           int    `json:"object_id"`            // Installation identifier in the store

	// Model settings
	Trees           int     `json:"trees"`             // Ensemble size
	Seed            uint64  `json:"seed"`              // Random seed for reproducible training
	MinTrainingRows int     `json:"min_training_rows"` // Minimum labeled rows required to train
	TestFraction    float64 `json:"test_fraction"`     // Holdout fraction for evaluation

	// Run loop settings
	RunInterval time.Duration `json:"run_interval"` // How often the pipeline runs (0 = single run)

	// Report settings
	ReportPath string `json:"report_path"` // Output path for the xlsx report

	// Web server settings
	ServerPort        int     `json:"server_port"`         // Port for the web API (0 = disabled)
	UnitWarnThreshold float64 `json:"unit_warn_threshold"` // kWh threshold for the unit-mismatch warning

	// Inverter settings
	InverterModbusAddress string        `json:"inverter_modbus_address"` // Inverter Modbus address (IP:PORT, empty = disabled)
	InverterPollInterval  time.Duration `json:"inverter_poll_interval"`  // Poll interval for the inverter energy counter
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Latitude:              49.6887, // Krosno, Poland
		Longitude:             21.7706, // Krosno, Poland
		Timezone:              "Europe/Warsaw",
		ForecastDays:          9,
		PastDays:              1,
		FetchRetries:          5,
		FetchBackoff:          200 * time.Millisecond,
		UserAgent:             "PVPlanner/1.0 (pvplanner@example.com)",
		PostgresConnString:    "",
		ObjectID:              1,
		Trees:                 100,
		Seed:                  42,
		MinTrainingRows:       10,
		TestFraction:          0.2,
		RunInterval:           6 * time.Hour,
		ReportPath:            "energy_report.xlsx",
		ServerPort:            0,
		UnitWarnThreshold:     10.0,
		InverterModbusAddress: "",
		InverterPollInterval:  15 * time.Minute,
	}
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a JSON file
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config JSON: %w", err)
	}
	return nil
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if err := openmeteo.ValidateLocation(c.WeatherLocation()); err != nil {
		return err
	}

	if c.Timezone == "" {
		return fmt.Errorf("timezone cannot be empty")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	if c.ForecastDays <= 0 || c.ForecastDays > 16 {
		return fmt.Errorf("forecast_days must be between 1 and 16, got: %d", c.ForecastDays)
	}

	if c.PastDays < 0 {
		return fmt.Errorf("past_days must be non-negative, got: %d", c.PastDays)
	}

	if c.FetchRetries < 0 {
		return fmt.Errorf("fetch_retries must be non-negative, got: %d", c.FetchRetries)
	}

	if c.FetchBackoff <= 0 {
		return fmt.Errorf("fetch_backoff must be greater than 0, got: %s", c.FetchBackoff)
	}

	if c.PostgresConnString == "" {
		return fmt.Errorf("postgres_conn_string cannot be empty")
	}

	if c.ObjectID <= 0 {
		return fmt.Errorf("object_id must be positive, got: %d", c.ObjectID)
	}

	if c.Trees <= 0 {
		return fmt.Errorf("trees must be positive, got: %d", c.Trees)
	}

	if c.MinTrainingRows < 2 {
		return fmt.Errorf("min_training_rows must be at least 2, got: %d", c.MinTrainingRows)
	}

	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		return fmt.Errorf("test_fraction must be between 0 and 1 exclusive, got: %f", c.TestFraction)
	}

	if c.RunInterval < 0 {
		return fmt.Errorf("run_interval must be non-negative, got: %s", c.RunInterval)
	}

	if c.ReportPath == "" {
		return fmt.Errorf("report_path cannot be empty")
	}

	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port must be between 0 and 65535, got: %d", c.ServerPort)
	}

	if c.UnitWarnThreshold < 0 {
		return fmt.Errorf("unit_warn_threshold must be non-negative, got: %f", c.UnitWarnThreshold)
	}

	if c.InverterModbusAddress != "" && c.InverterPollInterval <= 0 {
		return fmt.Errorf("inverter_poll_interval must be greater than 0, got: %s", c.InverterPollInterval)
	}

	return nil
}

// WeatherLocation returns the plant coordinates for weather requests
func (c *Config) WeatherLocation() openmeteo.Location {
	return openmeteo.Location{Latitude: c.Latitude, Longitude: c.Longitude}
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// ModelConfig returns the predictor configuration derived from the
// pipeline settings
func (c *Config) ModelConfig() predictor.Config {
	cfg := predictor.DefaultConfig()
	cfg.Forest.Trees = c.Trees
	cfg.Forest.Seed = c.Seed
	cfg.MinTrainingRows = c.MinTrainingRows
	cfg.TestFraction = c.TestFraction
	return cfg
}

// MarshalJSON implements custom JSON marshaling to handle durations
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		FetchBackoff         string `json:"fetch_backoff"`
		RunInterval          string `json:"run_interval"`
		InverterPollInterval string `json:"inverter_poll_interval"`
	}{
		Alias:                (*Alias)(c),
		FetchBackoff:         c.FetchBackoff.String(),
		RunInterval:          c.RunInterval.String(),
		InverterPollInterval: c.InverterPollInterval.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling to handle durations
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		FetchBackoff         string `json:"fetch_backoff"`
		RunInterval          string `json:"run_interval"`
		InverterPollInterval string `json:"inverter_poll_interval"`
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if aux.FetchBackoff != "" {
		if c.FetchBackoff, err = time.ParseDuration(aux.FetchBackoff); err != nil {
			return fmt.Errorf("invalid fetch_backoff: %w", err)
		}
	}

	if aux.RunInterval != "" {
		if c.RunInterval, err = time.ParseDuration(aux.RunInterval); err != nil {
			return fmt.Errorf("invalid run_interval: %w", err)
		}
	}

	if aux.InverterPollInterval != "" {
		if c.InverterPollInterval, err = time.ParseDuration(aux.InverterPollInterval); err != nil {
			return fmt.Errorf("invalid inverter_poll_interval: %w", err)
		}
	}

	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
