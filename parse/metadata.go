package parse

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"tidbyt.dev/trainlocation/model"
)

type trainRecord struct {
	TrainNumber       int                  `json:"trainNumber"`
	DepartureDate     string               `json:"departureDate"`
	OperatorShortCode string               `json:"operatorShortCode"`
	TrainType         string               `json:"trainType"`
	TrainCategory     string               `json:"trainCategory"`
	CommuterLineID    string               `json:"commuterLineID"`
	RunningCurrently  bool                 `json:"runningCurrently"`
	Cancelled         bool                 `json:"cancelled"`
	Version           int64                `json:"version"`
	TimetableType     string               `json:"timetableType"`
	TimeTableRows     []model.TimetableRow `json:"timeTableRows"`
}

// Parses a train metadata response: a JSON array of train records.
//
// Returns nil (and no error) if the array is empty. Otherwise the
// first record is used, and departure/destination are derived from
// its first and last timetable rows. Schedule times are rendered in
// loc.
func ParseMetadata(data []byte, loc *time.Location) (*model.TrainMetadata, error) {
	records := []trainRecord{}
	err := json.Unmarshal(bom.Clean(data), &records)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling train records")
	}

	if len(records) == 0 {
		return nil, nil
	}

	r := records[0]
	meta := &model.TrainMetadata{
		TrainNumber:       r.TrainNumber,
		DepartureDate:     r.DepartureDate,
		OperatorShortCode: r.OperatorShortCode,
		TrainType:         r.TrainType,
		TrainCategory:     r.TrainCategory,
		CommuterLineID:    r.CommuterLineID,
		RunningCurrently:  r.RunningCurrently,
		Cancelled:         r.Cancelled,
		Version:           r.Version,
		TimetableType:     r.TimetableType,
		TimeTableRows:     r.TimeTableRows,
	}

	DeriveEndpoints(meta, loc)

	return meta, nil
}

// Fills in departure and destination fields from the first and last
// timetable rows. With no rows, they're all left empty.
func DeriveEndpoints(meta *model.TrainMetadata, loc *time.Location) {
	rows := meta.TimeTableRows
	if len(rows) == 0 {
		return
	}

	departure := rows[0]
	destination := rows[len(rows)-1]

	meta.DepartureStation = departure.StationShortCode
	meta.DepartureTime = LocalizeTime(departure.ScheduledTime, loc)
	meta.DepartureTrack = departure.CommercialTrack
	meta.DestinationStation = destination.StationShortCode
	meta.DestinationTime = LocalizeTime(destination.ScheduledTime, loc)
	meta.DestinationTrack = destination.CommercialTrack
}

// Converts a UTC timestamp to a display string in loc. Malformed
// input yields model.InvalidTime.
func LocalizeTime(utc string, loc *time.Location) string {
	t, err := time.Parse(time.RFC3339Nano, utc)
	if err != nil {
		return model.InvalidTime
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(model.LocalTimeLayout)
}
