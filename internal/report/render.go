package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/ppiankov/rcvimpute/internal/model"
)

// WriteJSON writes the summary as indented JSON
func WriteJSON(w io.Writer, s *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteText writes the summary as aligned tables
func WriteText(w io.Writer, s *Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Run:\t%s\n", s.RunID)
	fmt.Fprintf(tw, "Target city:\t%s\n", s.TargetCity)
	fmt.Fprintf(tw, "Precincts imputed:\t%d\n", s.Precincts)
	fmt.Fprintf(tw, "Precincts excluded:\t%d\n", s.Excluded)
	fmt.Fprintf(tw, "Distinct schedules:\t%d\n", s.DistinctSchedules)
	fmt.Fprintf(tw, "Imputed ballots:\t%.2f\n", s.TotalBallots)
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "RACE\t1ST CHOICE\t2ND CHOICE\t3RD CHOICE\tIN TOP 3")
	for _, r := range s.Races {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\n",
			r.Race, r.ByPosition[0], r.ByPosition[1], r.ByPosition[2], r.InTop3)
	}

	if len(s.TopSchedules) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "SCHEDULE\tBALLOTS")
		for _, sc := range s.TopSchedules {
			fmt.Fprintf(tw, "%s\t%.2f\n", sc.Schedule, sc.Count)
		}
	}

	if len(s.WarningsByKind) > 0 {
		kinds := make([]model.WarningKind, 0, len(s.WarningsByKind))
		for k := range s.WarningsByKind {
			kinds = append(kinds, k)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "WARNING\tCOUNT")
		for _, k := range kinds {
			fmt.Fprintf(tw, "%s\t%d\n", k, s.WarningsByKind[k])
		}
	}

	return tw.Flush()
}

// WritePrecinct writes one precinct's match list and imputed table
func WritePrecinct(w io.Writer, pr *model.PrecinctResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Precinct:\t%s\n", pr.Precinct)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "RANK\tCITY\tDONOR\tSIMILARITY")
	for i, m := range pr.Matches {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.6f\n", i+1, m.Donor.City, m.Donor.ID, m.Similarity)
	}

	fmt.Fprintln(tw)
	if pr.Excluded {
		fmt.Fprintln(tw, "Excluded: no imputed table")
	} else {
		fmt.Fprintln(tw, "SCHEDULE\tBALLOTS")
		for _, sc := range pr.Imputed.Sorted() {
			fmt.Fprintf(tw, "%s\t%.4f\n", sc.Schedule, sc.Count)
		}
		fmt.Fprintf(tw, "total\t%.4f\n", pr.Imputed.Total())
	}

	for _, warn := range pr.Warnings {
		fmt.Fprintf(tw, "warning\t%s\t%s\n", warn.Kind, warn.Message)
	}

	return tw.Flush()
}
