package history

// DataType selects the series a query returns.
type DataType string

const (
	Temperature DataType = "temperature"
	Humidity    DataType = "humidity"
	Light       DataType = "light"
	Occupancy   DataType = "occupancy"
	Power       DataType = "power"
)

// DataTypes lists every data type in report order.
func DataTypes() []DataType {
	return []DataType{Temperature, Humidity, Light, Occupancy, Power}
}

// Valid reports whether d is a known data type.
func (d DataType) Valid() bool {
	switch d {
	case Temperature, Humidity, Light, Occupancy, Power:
		return true
	}
	return false
}

// Unit is the aggregation granularity.
type Unit string

const (
	Hour Unit = "hour"
	Day  Unit = "day"
)

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	return u == Hour || u == Day
}

// Query selects one series over an inclusive date range.
type Query struct {
	Start    string   `json:"start_date"`
	End      string   `json:"end_date"`
	DataType DataType `json:"data_type"`
	Unit     Unit     `json:"unit"`
}

// Point is one series value. Hourly occupancy values are booleans; every
// other value is a float64.
type Point struct {
	Timestamp string `json:"timestamp"`
	Value     any    `json:"value"`
}

// Result is a query answer.
type Result struct {
	Data     []Point  `json:"data"`
	Unit     Unit     `json:"unit"`
	DataType DataType `json:"data_type"`
}

// DateAvailability reports whether a calendar date has stored samples.
type DateAvailability struct {
	Date    string `json:"date"`
	HasData bool   `json:"has_data"`
}

// DateRange echoes a report's inclusive range.
type DateRange struct {
	Start string `json:"start_date"`
	End   string `json:"end_date"`
}

// PowerSummary aggregates daily energy in kWh.
type PowerSummary struct {
	TotalConsumption float64 `json:"total_consumption"`
	AverageDaily     float64 `json:"average_daily"`
	MaxDaily         float64 `json:"max_daily"`
	MinDaily         float64 `json:"min_daily"`
	Unit             string  `json:"unit"`
	Days             int     `json:"days"`
}

// OccupancySummary counts days on which the room was ever occupied.
type OccupancySummary struct {
	OccupancyRate float64 `json:"occupancy_rate"`
	OccupiedDays  int     `json:"occupied_days"`
	TotalDays     int     `json:"total_days"`
	Unit          string  `json:"unit"`
}

// SensorSummary aggregates daily means of an environmental sensor.
type SensorSummary struct {
	Average float64 `json:"average"`
	Minimum float64 `json:"minimum"`
	Maximum float64 `json:"maximum"`
	Unit    string  `json:"unit"`
}

// Summary holds one entry per data type that had data.
type Summary struct {
	Temperature *SensorSummary    `json:"temperature,omitempty"`
	Humidity    *SensorSummary    `json:"humidity,omitempty"`
	Light       *SensorSummary    `json:"light,omitempty"`
	Occupancy   *OccupancySummary `json:"occupancy,omitempty"`
	Power       *PowerSummary     `json:"power,omitempty"`
}

// Report is the energy report for a date range.
type Report struct {
	DateRange DateRange            `json:"date_range"`
	Summary   Summary              `json:"summary"`
	DailyData map[DataType][]Point `json:"daily_data"`
}
