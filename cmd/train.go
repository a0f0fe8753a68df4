package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"

	"tidbyt.dev/trainlocation"
	"tidbyt.dev/trainlocation/model"
)

var trainCmd = &cobra.Command{
	Use:   "train <number>...",
	Short: "Shows position and schedule of trains",
	Args:  cobra.MinimumNArgs(1),
	RunE:  train,
}

var debug bool

func init() {
	trainCmd.Flags().BoolVarP(&debug, "debug", "", false, "Dump the full view of each train")
}

func train(cmd *cobra.Command, args []string) error {
	numbers := []int{}
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid train number: %s", arg)
		}
		numbers = append(numbers, n)
	}

	manager, store, err := NewManager()
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = manager.PollOnce(cmd.Context())
	if err != nil {
		return err
	}

	// Only trains in the fleet can be selected
	known := []int{}
	for _, n := range numbers {
		if _, found := manager.Train(n); found {
			known = append(known, n)
		}
	}
	manager.PrefetchMetadata(cmd.Context(), known)

	out := cmd.OutOrStdout()
	for _, n := range numbers {
		view, err := manager.Select(cmd.Context(), n)
		if errors.Is(err, trainlocation.ErrTrainNotFound) {
			fmt.Fprintf(out, "%d: Train not found!\n", n)
			continue
		}
		if err != nil {
			return err
		}

		if debug {
			pretty.Fprintf(out, "%# v\n", view)
			continue
		}
		writeView(out, view)
	}

	return nil
}

func writeView(w io.Writer, view *model.SelectedTrainView) {
	fmt.Fprintf(w, "Train %d\n", view.TrainNumber)
	if view.Latitude != nil && view.Longitude != nil {
		fmt.Fprintf(w, "  Position:    %.5f,%.5f\n", *view.Latitude, *view.Longitude)
	}
	fmt.Fprintf(w, "  Speed:       %.0f km/h\n", view.Speed)

	if !view.MetadataLoaded {
		fmt.Fprintf(w, "  Schedule:    unavailable\n")
		return
	}

	fmt.Fprintf(w, "  Type:        %s (%s)\n", view.TrainType, view.TrainCategory)
	fmt.Fprintf(w, "  Departure:   %s %s, track %s\n", view.DepartureStation, view.DepartureTime, view.DepartureTrack)
	fmt.Fprintf(w, "  Destination: %s %s, track %s\n", view.DestinationStation, view.DestinationTime, view.DestinationTrack)
}
