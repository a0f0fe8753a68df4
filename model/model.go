package model

import (
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Holds all external facing types and constants.

const (
	// Display format for localized schedule times: day/month/year
	// and a 24-hour clock.
	LocalTimeLayout = "02/01/2006, 15:04"

	// Shown in place of a schedule time that couldn't be parsed.
	InvalidTime = "Invalid Date"

	// Shown by presentation layers for fields not yet resolved.
	Placeholder = "Loading..."
)

// One currently reporting train, as seen in a single poll.
type TrainPosition struct {
	TrainNumber int      `json:"trainNumber" csv:"train_number" groups:"basic,detailed"`
	Latitude    *float64 `json:"latitude" csv:"latitude" groups:"basic,detailed"`
	Longitude   *float64 `json:"longitude" csv:"longitude" groups:"basic,detailed"`
	Speed       float64  `json:"speed" csv:"speed" groups:"basic,detailed"`
}

// Reports whether the position can be placed on a map. Rows without
// usable coordinates remain valid for everything else.
func (p TrainPosition) HasLocation() bool {
	if p.Latitude == nil || p.Longitude == nil {
		return false
	}
	lat, lon := *p.Latitude, *p.Longitude
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if lat == 0 || lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func (p TrainPosition) Moving() bool {
	return p.Speed > 0
}

// The full set of reporting trains as of one poll.
type Snapshot struct {
	ID       uuid.UUID
	PolledAt time.Time
	Trains   map[int]TrainPosition
}

// A single stop in a train's timetable.
type TimetableRow struct {
	StationShortCode string `json:"stationShortCode" groups:"detailed"`
	Type             string `json:"type" groups:"detailed"`
	TrainStopping    bool   `json:"trainStopping" groups:"detailed"`
	CommercialTrack  string `json:"commercialTrack" groups:"detailed"`
	Cancelled        bool   `json:"cancelled" groups:"detailed"`
	ScheduledTime    string `json:"scheduledTime" groups:"detailed"`
}

// Schedule metadata for one train, with departure and destination
// derived from the first and last timetable rows.
type TrainMetadata struct {
	TrainNumber       int            `json:"trainNumber" groups:"basic,detailed"`
	DepartureDate     string         `json:"departureDate" groups:"detailed"`
	OperatorShortCode string         `json:"operatorShortCode" groups:"detailed"`
	TrainType         string         `json:"trainType" groups:"basic,detailed"`
	TrainCategory     string         `json:"trainCategory" groups:"basic,detailed"`
	CommuterLineID    string         `json:"commuterLineID" groups:"detailed"`
	RunningCurrently  bool           `json:"runningCurrently" groups:"detailed"`
	Cancelled         bool           `json:"cancelled" groups:"detailed"`
	Version           int64          `json:"version" groups:"detailed"`
	TimetableType     string         `json:"timetableType" groups:"detailed"`
	TimeTableRows     []TimetableRow `json:"timeTableRows" groups:"detailed"`

	DepartureStation   string `json:"departureStation,omitempty" groups:"basic,detailed"`
	DepartureTime      string `json:"departureTime,omitempty" groups:"basic,detailed"`
	DepartureTrack     string `json:"departureTrack,omitempty" groups:"basic,detailed"`
	DestinationStation string `json:"destinationStation,omitempty" groups:"basic,detailed"`
	DestinationTime    string `json:"destinationTime,omitempty" groups:"basic,detailed"`
	DestinationTrack   string `json:"destinationTrack,omitempty" groups:"basic,detailed"`
}

// Returns a copy that shares no memory with m.
func (m *TrainMetadata) Clone() *TrainMetadata {
	if m == nil {
		return nil
	}
	c := *m
	c.TimeTableRows = slices.Clone(m.TimeTableRows)
	return &c
}

// Metadata merged with the latest live position of the selected
// train. Metadata fields are empty until MetadataLoaded is set.
type SelectedTrainView struct {
	TrainNumber    int      `json:"trainNumber" groups:"basic,detailed"`
	Speed          float64  `json:"speed" groups:"basic,detailed"`
	Latitude       *float64 `json:"latitude" groups:"basic,detailed"`
	Longitude      *float64 `json:"longitude" groups:"basic,detailed"`
	MetadataLoaded bool     `json:"metadataLoaded" groups:"basic,detailed"`

	DepartureDate     string         `json:"departureDate,omitempty" groups:"detailed"`
	OperatorShortCode string         `json:"operatorShortCode,omitempty" groups:"detailed"`
	TrainType         string         `json:"trainType,omitempty" groups:"basic,detailed"`
	TrainCategory     string         `json:"trainCategory,omitempty" groups:"basic,detailed"`
	CommuterLineID    string         `json:"commuterLineID,omitempty" groups:"detailed"`
	RunningCurrently  bool           `json:"runningCurrently" groups:"detailed"`
	Cancelled         bool           `json:"cancelled" groups:"detailed"`
	Version           int64          `json:"version,omitempty" groups:"detailed"`
	TimetableType     string         `json:"timetableType,omitempty" groups:"detailed"`
	TimeTableRows     []TimetableRow `json:"timeTableRows,omitempty" groups:"detailed"`

	DepartureStation   string `json:"departureStation,omitempty" groups:"basic,detailed"`
	DepartureTime      string `json:"departureTime,omitempty" groups:"basic,detailed"`
	DepartureTrack     string `json:"departureTrack,omitempty" groups:"basic,detailed"`
	DestinationStation string `json:"destinationStation,omitempty" groups:"basic,detailed"`
	DestinationTime    string `json:"destinationTime,omitempty" groups:"basic,detailed"`
	DestinationTrack   string `json:"destinationTrack,omitempty" groups:"basic,detailed"`
}

// Returns a copy that shares no memory with v.
func (v *SelectedTrainView) Clone() *SelectedTrainView {
	if v == nil {
		return nil
	}
	c := *v
	c.Latitude = copyFloat(v.Latitude)
	c.Longitude = copyFloat(v.Longitude)
	c.TimeTableRows = slices.Clone(v.TimeTableRows)
	return &c
}

// Copies the live fields of a position onto the view.
func (v *SelectedTrainView) ApplyPosition(p TrainPosition) {
	v.TrainNumber = p.TrainNumber
	v.Speed = p.Speed
	v.Latitude = copyFloat(p.Latitude)
	v.Longitude = copyFloat(p.Longitude)
}

// Reports whether any live field differs from the given position.
func (v *SelectedTrainView) LiveDiffers(p TrainPosition) bool {
	return v.Speed != p.Speed ||
		!floatPtrEqual(v.Latitude, p.Latitude) ||
		!floatPtrEqual(v.Longitude, p.Longitude)
}

// Short summary for a map marker popup. Category and type come from
// cached metadata only.
type TrainSummary struct {
	TrainNumber   int     `json:"trainNumber"`
	Speed         float64 `json:"speed"`
	Moving        bool    `json:"moving"`
	TrainCategory string  `json:"trainCategory"`
	TrainType     string  `json:"trainType"`
}

func NewTrainSummary(p TrainPosition, meta *TrainMetadata) TrainSummary {
	s := TrainSummary{
		TrainNumber:   p.TrainNumber,
		Speed:         p.Speed,
		Moving:        p.Moving(),
		TrainCategory: Placeholder,
		TrainType:     Placeholder,
	}
	if meta != nil {
		if meta.TrainCategory != "" {
			s.TrainCategory = meta.TrainCategory
		}
		if meta.TrainType != "" {
			s.TrainType = meta.TrainType
		}
	}
	return s
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
