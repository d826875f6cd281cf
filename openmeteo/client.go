package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// hourlyVariables is the fixed variable set requested from the forecast
// endpoint. The archive endpoint serves the instantaneous irradiance
// variant instead.
var (
	forecastVariables = "temperature_2m,cloud_cover,global_tilted_irradiance"
	archiveVariables  = "temperature_2m,cloud_cover,global_tilted_irradiance_instant"
)

// Client is a client for the Open-Meteo forecast and archive APIs.
type Client struct {
	httpClient  *http.Client
	forecastURL string
	archiveURL  string
	userAgent   string
	retries     int
	backoff     time.Duration
	forecastTTL time.Duration
	archiveTTL  time.Duration
	cache       *responseCache
	logger      *log.Logger
}

// NewClient creates a new Open-Meteo client with default settings:
// 5 retries with 200ms exponential backoff, a 1h forecast cache and a 24h
// archive cache.
func NewClient(userAgent string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		forecastURL: "https://api.open-meteo.com/v1/forecast",
		archiveURL:  "https://archive-api.open-meteo.com/v1/archive",
		userAgent:   userAgent,
		retries:     5,
		backoff:     200 * time.Millisecond,
		forecastTTL: time.Hour,
		archiveTTL:  24 * time.Hour,
		cache:       newResponseCache(),
		logger:      logger,
	}
}

// NewClientWithHTTPClient creates a new client with a custom HTTP client.
func NewClientWithHTTPClient(httpClient *http.Client, userAgent string, logger *log.Logger) *Client {
	c := NewClient(userAgent, logger)
	c.httpClient = httpClient
	return c
}

// SetForecastURL sets the forecast base URL (useful for testing).
func (c *Client) SetForecastURL(baseURL string) {
	c.forecastURL = baseURL
}

// SetArchiveURL sets the archive base URL (useful for testing).
func (c *Client) SetArchiveURL(baseURL string) {
	c.archiveURL = baseURL
}

// SetRetries configures the retry count and initial backoff delay.
func (c *Client) SetRetries(retries int, backoff time.Duration) {
	c.retries = retries
	c.backoff = backoff
}

// FetchForecast retrieves the hourly forecast for the location, covering
// pastDays back and forecastDays ahead of today.
func (c *Client) FetchForecast(ctx context.Context, loc Location, pastDays, forecastDays int) (*HourlyResponse, error) {
	if err := ValidateLocation(loc); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("latitude", formatFloat(loc.Latitude))
	query.Set("longitude", formatFloat(loc.Longitude))
	query.Set("hourly", forecastVariables)
	query.Set("past_days", strconv.Itoa(pastDays))
	query.Set("forecast_days", strconv.Itoa(forecastDays))
	query.Set("timezone", "UTC")

	return c.get(ctx, "forecast", c.forecastURL, query, c.forecastTTL)
}

// FetchHistorical retrieves archived hourly observations for the location
// between start and end (inclusive calendar dates).
func (c *Client) FetchHistorical(ctx context.Context, loc Location, start, end time.Time) (*HourlyResponse, error) {
	if err := ValidateLocation(loc); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s is before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	query := url.Values{}
	query.Set("latitude", formatFloat(loc.Latitude))
	query.Set("longitude", formatFloat(loc.Longitude))
	query.Set("hourly", archiveVariables)
	query.Set("start_date", start.Format("2006-01-02"))
	query.Set("end_date", end.Format("2006-01-02"))
	query.Set("timezone", "UTC")

	return c.get(ctx, "archive", c.archiveURL, query, c.archiveTTL)
}

// get performs the request with caching and bounded retries.
func (c *Client) get(ctx context.Context, operation, baseURL string, query url.Values, ttl time.Duration) (*HourlyResponse, error) {
	reqURL := baseURL + "?" + query.Encode()

	if resp, ok := c.cache.Get(reqURL); ok {
		c.logger.Printf("Weather: using cached %s response", operation)
		return resp, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			c.logger.Printf("Weather: %s attempt %d failed, retrying in %s: %v",
				operation, attempt, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, retryable, err := c.doRequest(ctx, reqURL)
		if err == nil {
			c.cache.Set(reqURL, resp, ttl)
			return resp, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, &NetworkError{Operation: operation, Attempts: c.retries + 1, Err: lastErr}
}

// doRequest performs a single request. The second return value reports
// whether the failure is transient and worth retrying.
func (c *Client) doRequest(ctx context.Context, reqURL string) (*HourlyResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, apiErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	var hourly HourlyResponse
	if err := json.Unmarshal(body, &hourly); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(hourly.Hourly.Time) == 0 {
		return nil, false, fmt.Errorf("response contains no hourly data")
	}

	return &hourly, false, nil
}

// formatFloat formats a float64 to a string with appropriate precision.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
