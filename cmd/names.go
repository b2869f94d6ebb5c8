package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/coa-cli/internal/dataset"
)

var namesCmd = &cobra.Command{
	Use:   "names <dataset>...",
	Short: "Parse dataset names into kind, subject, scale and years",
	Long: `Checks dataset names against the <kind>_<subject><year>_<scale><year>
convention and prints their parts. Exits nonzero if any name is malformed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		ids, bad := parseNames(args)
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(ids); err != nil {
				return eris.Wrap(err, "names: encode")
			}
		} else {
			formatNames(os.Stdout, ids)
		}

		for _, err := range bad {
			fmt.Fprintln(os.Stderr, err)
		}
		if len(bad) > 0 {
			return eris.Errorf("names: %d of %d names are malformed", len(bad), len(args))
		}
		return nil
	},
}

var namesOutputCmd = &cobra.Command{
	Use:   "output <travel-time> <land-use>",
	Short: "Print the output table name for a travel-time and land-use pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		name, err := outputFor(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(name)
		return nil
	},
}

func init() {
	namesCmd.Flags().Bool("json", false, "print parsed names as JSON")
	namesCmd.AddCommand(namesOutputCmd)
	rootCmd.AddCommand(namesCmd)
}

// parsedName pairs a dataset name with its parts.
type parsedName struct {
	Name string `json:"name"`
	dataset.Identifier
}

// parseNames parses every name, returning the well-formed ones and an error
// per malformed one.
func parseNames(names []string) ([]parsedName, []error) {
	var (
		ids []parsedName
		bad []error
	)
	for _, name := range names {
		id, err := dataset.Parse(name)
		if err != nil {
			bad = append(bad, err)
			continue
		}
		ids = append(ids, parsedName{Name: name, Identifier: id})
	}
	return ids, bad
}

func outputFor(travelTime, landUse string) (string, error) {
	tt, err := dataset.Parse(travelTime)
	if err != nil {
		return "", err
	}
	lu, err := dataset.Parse(landUse)
	if err != nil {
		return "", err
	}
	return dataset.OutputName(tt, lu)
}

// formatNames writes a tabular list of parsed names to out.
func formatNames(out io.Writer, ids []parsedName) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tKIND\tSUBJECT\tYEAR\tSCALE\tSCALE_YEAR")
	_, _ = fmt.Fprintln(w, "----\t----\t-------\t----\t-----\t----------")
	for _, id := range ids {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			id.Name, id.Kind, id.Subject, id.SubjectYear, id.Scale, id.ScaleYear)
	}
	_ = w.Flush()
}
