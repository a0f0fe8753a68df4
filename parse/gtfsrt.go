package parse

import (
	"fmt"
	"regexp"
	"strconv"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/pkg/errors"
	proto "google.golang.org/protobuf/proto"

	"tidbyt.dev/trainlocation/model"
)

var trainNumberRegex = regexp.MustCompile(`\d+`)

// Parses a GTFS Realtime VehiclePositions feed into train positions.
//
// The train number is taken from the first run of digits in the
// vehicle label, vehicle id or trip id, in that order. Vehicles
// without one are skipped. Speed is converted from m/s to km/h.
func ParsePositionsGTFSRT(data []byte) ([]model.TrainPosition, error) {
	f := &gtfsproto.FeedMessage{}
	err := proto.Unmarshal(data, f)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling protobuf")
	}

	version := f.GetHeader().GetGtfsRealtimeVersion()
	if version != "2.0" && version != "1.0" {
		return nil, fmt.Errorf("version %s not supported", version)
	}

	positions := []model.TrainPosition{}
	for _, entity := range f.GetEntity() {
		vehicle := entity.GetVehicle()
		if vehicle == nil {
			continue
		}

		number, ok := vehicleTrainNumber(vehicle)
		if !ok {
			continue
		}

		pos := model.TrainPosition{TrainNumber: number}
		if p := vehicle.GetPosition(); p != nil {
			lat := float64(p.GetLatitude())
			lon := float64(p.GetLongitude())
			pos.Latitude = &lat
			pos.Longitude = &lon
			if p.Speed != nil && p.GetSpeed() > 0 {
				pos.Speed = float64(p.GetSpeed()) * 3.6
			}
		}

		positions = append(positions, pos)
	}

	return positions, nil
}

func vehicleTrainNumber(vehicle *gtfsproto.VehiclePosition) (int, bool) {
	candidates := []string{
		vehicle.GetVehicle().GetLabel(),
		vehicle.GetVehicle().GetId(),
		vehicle.GetTrip().GetTripId(),
	}
	for _, c := range candidates {
		digits := trainNumberRegex.FindString(c)
		if digits == "" {
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}
