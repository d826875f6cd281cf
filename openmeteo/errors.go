package openmeteo

import "fmt"

// APIError represents an error status returned by the Open-Meteo API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// NetworkError represents a request that failed before an HTTP status was
// received, after all retries were exhausted.
type NetworkError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidateLocation validates that the coordinates are within range.
func ValidateLocation(loc Location) error {
	if loc.Latitude < -90 || loc.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got %f", loc.Latitude)
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got %f", loc.Longitude)
	}
	return nil
}
