package cmd

import (
	"github.com/spf13/cobra"

	"github.com/papapumpkin/osmpoi/internal/app"
)

var queryCmd = &cobra.Command{
	Use:   "query <dataset> <input.csv> <output.csv>",
	Short: "Find POIs near each point of an input CSV",
	Long: `Reads points (id,lat,lon) from the input CSV and writes every POI of the
dataset within --distance kilometres of each point to the output CSV.

Without --strict a POI matches when its extent touches the search box; with
--strict its centre must be within the distance. --native answers the query
in-process instead of through the engine binary.`,
	Args: cobra.ExactArgs(3),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().Float64("distance", 0, "search radius in km (default from config)")
	queryCmd.Flags().Bool("strict", false, "only match POIs whose centre is within the distance")
	queryCmd.Flags().Bool("native", false, "query in-process without the engine binary")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.cleanup()

	ctx, cancel := setupSignalContext(cmd.Context(), s.printer)
	defer cancel()

	distance, _ := cmd.Flags().GetFloat64("distance")
	strict, _ := cmd.Flags().GetBool("strict")
	native, _ := cmd.Flags().GetBool("native")

	res, err := s.app.RunQuery(ctx, args[0], args[1], args[2], app.QueryOptions{
		DistanceKm: distance,
		Strict:     strict,
		Native:     native,
	})
	if err != nil {
		return err
	}
	s.printer.QueryDone(res)
	return nil
}
