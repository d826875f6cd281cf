package openmeteo

// Location represents coordinates for a weather request.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// HourlyUnits contains the units reported for the hourly variables.
type HourlyUnits struct {
	Time              *string `json:"time,omitempty"`
	Temperature       *string `json:"temperature_2m,omitempty"`
	CloudCover        *string `json:"cloud_cover,omitempty"`
	Irradiance        *string `json:"global_tilted_irradiance,omitempty"`
	IrradianceInstant *string `json:"global_tilted_irradiance_instant,omitempty"`
}

// HourlyData contains the per-hour value arrays. Entries are pointers
// because the API reports missing readings as JSON null. The archive
// endpoint serves the instantaneous irradiance variable while the forecast
// endpoint serves the interval average; IrradianceValues unifies the two.
type HourlyData struct {
	Time              []string   `json:"time"`
	Temperature       []*float64 `json:"temperature_2m"`
	CloudCover        []*float64 `json:"cloud_cover"`
	Irradiance        []*float64 `json:"global_tilted_irradiance"`
	IrradianceInstant []*float64 `json:"global_tilted_irradiance_instant"`
}

// IrradianceValues returns whichever irradiance array the response carries.
func (h *HourlyData) IrradianceValues() []*float64 {
	if len(h.Irradiance) > 0 {
		return h.Irradiance
	}
	return h.IrradianceInstant
}

// HourlyResponse is the root Open-Meteo response for an hourly request.
type HourlyResponse struct {
	Latitude         float64     `json:"latitude"`
	Longitude        float64     `json:"longitude"`
	Elevation        float64     `json:"elevation"`
	Timezone         string      `json:"timezone"`
	UTCOffsetSeconds int         `json:"utc_offset_seconds"`
	HourlyUnits      HourlyUnits `json:"hourly_units"`
	Hourly           HourlyData  `json:"hourly"`
}
