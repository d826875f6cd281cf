package openmeteo

import (
	"fmt"
	"sort"
	"time"

	"github.com/pvplanner/pvplanner/store"
)

// apiTimeLayout is the timestamp format of hourly responses requested in UTC.
const apiTimeLayout = "2006-01-02T15:04"

// Records converts an hourly response to weather records in the given
// location. Hours with any missing reading are dropped; timestamps are
// converted from UTC to loc, which applies the local daylight-saving
// transition rules.
func Records(resp *HourlyResponse, loc *time.Location, dataType store.DataType) ([]store.WeatherRecord, error) {
	irradiance := resp.Hourly.IrradianceValues()
	n := len(resp.Hourly.Time)
	if len(resp.Hourly.Temperature) != n || len(resp.Hourly.CloudCover) != n || len(irradiance) != n {
		return nil, fmt.Errorf("hourly arrays have mismatched lengths (time=%d temp=%d cloud=%d gti=%d)",
			n, len(resp.Hourly.Temperature), len(resp.Hourly.CloudCover), len(irradiance))
	}

	var records []store.WeatherRecord
	for i := 0; i < n; i++ {
		if resp.Hourly.Temperature[i] == nil || resp.Hourly.CloudCover[i] == nil || irradiance[i] == nil {
			continue
		}

		ts, err := time.ParseInLocation(apiTimeLayout, resp.Hourly.Time[i], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q: %w", resp.Hourly.Time[i], err)
		}
		local := ts.In(loc)

		records = append(records, store.WeatherRecord{
			Date:       store.DateOnly(local),
			Hour:       local.Hour(),
			Temp:       *resp.Hourly.Temperature[i],
			Cloud:      *resp.Hourly.CloudCover[i],
			Irradiance: *irradiance[i],
			Type:       dataType,
		})
	}

	return records, nil
}

// FilterCompleteDays keeps only records belonging to dates with all 24
// distinct hours present and returns those records together with the list
// of dropped dates. A partial day is worse than no day: downstream
// pivoting assumes full 24-row days.
func FilterCompleteDays(records []store.WeatherRecord) ([]store.WeatherRecord, []time.Time) {
	hoursByDate := make(map[time.Time]map[int]bool)
	for _, r := range records {
		hours, ok := hoursByDate[r.Date]
		if !ok {
			hours = make(map[int]bool)
			hoursByDate[r.Date] = hours
		}
		hours[r.Hour] = true
	}

	var dropped []time.Time
	complete := make(map[time.Time]bool, len(hoursByDate))
	for date, hours := range hoursByDate {
		if len(hours) == 24 {
			complete[date] = true
		} else {
			dropped = append(dropped, date)
		}
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].Before(dropped[j]) })

	kept := make([]store.WeatherRecord, 0, len(records))
	for _, r := range records {
		if complete[r.Date] {
			kept = append(kept, r)
		}
	}
	return kept, dropped
}
