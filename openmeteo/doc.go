// Package openmeteo provides a Go client for the Open-Meteo forecast and
// archive APIs, limited to the hourly variables the energy predictors
// consume: air temperature, cloud cover and global tilted irradiance.
//
// Basic Usage:
//
//	client := openmeteo.NewClient("YourApp/1.0 (your-email@example.com)", nil)
//
//	location := openmeteo.Location{
//		Latitude:  49.6887,
//		Longitude: 21.7706,
//	}
//
//	resp, err := client.FetchForecast(ctx, location, 1, 9)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	records, err := openmeteo.Records(resp, warsaw, store.Predicted)
//	records, dropped = openmeteo.FilterCompleteDays(records)
//
// The client retries transient failures with exponential backoff and keeps
// a small in-memory response cache, so repeated runs within the cache TTL
// do not hit the API again. Responses are requested in UTC
// and converted to the installation's timezone by Records, which applies
// the local daylight-saving rules through time.Location.
//
// For more information about the API, visit: https://open-meteo.com/en/docs
package openmeteo
