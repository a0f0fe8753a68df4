package main

import (
	"fmt"
	"io"

	"github.com/expr-lang/expr"
	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"tidbyt.dev/trainlocation/model"
)

var trainsCmd = &cobra.Command{
	Use:   "trains",
	Short: "Lists currently reporting trains",
	Long: `Polls the positions feed once and lists every reporting train.

Filter expressions see number, speed, lat, lon, moving and placeable,
e.g. --filter 'moving && speed > 100'.`,
	Args: cobra.NoArgs,
	RunE: trains,
}

var (
	placeableOnly bool
	filterExpr    string
	format        string
)

func init() {
	trainsCmd.Flags().BoolVarP(&placeableOnly, "placeable", "p", false, "Only trains with a usable location")
	trainsCmd.Flags().StringVarP(&filterExpr, "filter", "f", "", "Only trains matching this expression")
	trainsCmd.Flags().StringVarP(&format, "format", "o", "text", "Output format (text or csv)")
}

func trains(cmd *cobra.Command, args []string) error {
	manager, store, err := NewManager()
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = manager.PollOnce(cmd.Context())
	if err != nil {
		return err
	}

	positions := manager.Trains()
	if placeableOnly {
		positions = manager.PlaceableTrains()
	}

	positions, err = filterTrains(positions, filterExpr)
	if err != nil {
		return err
	}

	return writeTrains(cmd.OutOrStdout(), positions, format)
}

func trainEnv(p model.TrainPosition) map[string]interface{} {
	env := map[string]interface{}{
		"number":    p.TrainNumber,
		"speed":     p.Speed,
		"lat":       0.0,
		"lon":       0.0,
		"moving":    p.Moving(),
		"placeable": p.HasLocation(),
	}
	if p.Latitude != nil {
		env["lat"] = *p.Latitude
	}
	if p.Longitude != nil {
		env["lon"] = *p.Longitude
	}
	return env
}

func filterTrains(positions []model.TrainPosition, filter string) ([]model.TrainPosition, error) {
	if filter == "" {
		return positions, nil
	}

	program, err := expr.Compile(filter, expr.Env(trainEnv(model.TrainPosition{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling filter: %w", err)
	}

	filtered := []model.TrainPosition{}
	for _, p := range positions {
		out, err := expr.Run(program, trainEnv(p))
		if err != nil {
			return nil, fmt.Errorf("evaluating filter for train %d: %w", p.TrainNumber, err)
		}
		if out.(bool) {
			filtered = append(filtered, p)
		}
	}

	return filtered, nil
}

func writeTrains(w io.Writer, positions []model.TrainPosition, format string) error {
	switch format {
	case "csv":
		return gocsv.Marshal(positions, w)
	case "text", "":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	for _, p := range positions {
		location := "no location"
		if p.HasLocation() {
			location = fmt.Sprintf("%.5f,%.5f", *p.Latitude, *p.Longitude)
		}
		state := "stopped"
		if p.Moving() {
			state = fmt.Sprintf("%.0f km/h", p.Speed)
		}
		fmt.Fprintf(w, "%d: %s (%s)\n", p.TrainNumber, location, state)
	}
	return nil
}
