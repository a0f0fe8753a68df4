package parse

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"tidbyt.dev/trainlocation/model"
)

// GeoJSON feature collection as served by the train locations
// endpoint. Only the fields we use are declared.
type positionCollection struct {
	Features []positionFeature `json:"features"`
}

type positionFeature struct {
	Properties struct {
		TrainNumber *int     `json:"trainNumber"`
		Speed       *float64 `json:"speed"`
	} `json:"properties"`
	Geometry *struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

// Parses a GeoJSON train location feed.
//
// Coordinates are given as [lon, lat]. Features with missing or short
// coordinate arrays are still returned, with Latitude/Longitude left
// nil; deciding what to do with them is up to the caller. Features
// lacking a train number can't be keyed and are dropped.
func ParsePositions(data []byte) ([]model.TrainPosition, error) {
	collection := positionCollection{}
	err := json.Unmarshal(bom.Clean(data), &collection)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling positions geojson")
	}

	positions := make([]model.TrainPosition, 0, len(collection.Features))
	for _, f := range collection.Features {
		if f.Properties.TrainNumber == nil {
			continue
		}

		pos := model.TrainPosition{
			TrainNumber: *f.Properties.TrainNumber,
		}

		if f.Properties.Speed != nil && *f.Properties.Speed > 0 {
			pos.Speed = *f.Properties.Speed
		}

		if f.Geometry != nil && len(f.Geometry.Coordinates) >= 2 {
			lon := f.Geometry.Coordinates[0]
			lat := f.Geometry.Coordinates[1]
			pos.Longitude = &lon
			pos.Latitude = &lat
		}

		positions = append(positions, pos)
	}

	return positions, nil
}
