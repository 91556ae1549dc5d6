package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/skylight/leaderboard/internal/leaderboard"
)

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatCSV  = "csv"
)

func render(w io.Writer, format string, view *leaderboard.CombinedView) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case formatCSV:
		return renderCSV(w, view)
	default:
		return renderText(w, view)
	}
}

// viewSparsities returns every sparsity level that appears in a ranking's
// per-sparsity gaps, ascending.
func viewSparsities(view *leaderboard.CombinedView) []float64 {
	var out []float64
	for _, r := range view.Rankings {
		for _, sv := range r.AvgValuesPerSparsity {
			out = append(out, sv.Sparsity)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// gapAt returns the ranking's gap at sparsity s, if it has one.
func gapAt(r leaderboard.CombinedRanking, s float64) (float64, bool) {
	for _, sv := range r.AvgValuesPerSparsity {
		if sv.Sparsity == s {
			return sv.Value, true
		}
	}
	return 0, false
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatSparsity(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

func renderText(w io.Writer, view *leaderboard.CombinedView) error {
	fmt.Fprintf(w, "Metric: %s  Reference: %s  Tables: %d\n\n", view.Metric, view.ReferenceBaseline, view.TotalTables)

	sparsities := viewSparsities(view)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "RANK\tBASELINE\tAVG RANK\tAVG SCORE\tTABLES\tBEST\tWORST")
	for _, s := range sparsities {
		fmt.Fprintf(tw, "\tGAP@%s%%", formatSparsity(s))
	}
	fmt.Fprintln(tw, "\t")

	for _, r := range view.Rankings {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%s\t%d\t%d\t%d",
			r.Rank, r.BaselineName, r.AvgRank, formatFloat(r.AvgScore), r.NumTables, r.BestRank, r.WorstRank)
		for _, s := range sparsities {
			if v, ok := gapAt(r, s); ok {
				fmt.Fprintf(tw, "\t%+.2f%%", v)
			} else {
				fmt.Fprint(tw, "\t-")
			}
		}
		fmt.Fprintln(tw, "\t")
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(view.Excluded) > 0 {
		fmt.Fprintln(w, "\nExcluded (table count differs from the reference):")
		for _, e := range view.Excluded {
			fmt.Fprintf(w, "  %s (%d tables)\n", e.BaselineName, e.NumTables)
		}
	}
	if len(view.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, msg := range view.Warnings {
			fmt.Fprintf(w, "  %s\n", msg)
		}
	}
	return nil
}

func renderCSV(w io.Writer, view *leaderboard.CombinedView) error {
	sparsities := viewSparsities(view)
	cw := csv.NewWriter(w)

	header := []string{"rank", "baseline", "avg_rank", "avg_score", "num_tables", "best_rank", "worst_rank"}
	for _, s := range sparsities {
		header = append(header, "gap_"+formatSparsity(s))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range view.Rankings {
		row := []string{
			strconv.Itoa(r.Rank),
			r.BaselineName,
			formatFloat(r.AvgRank),
			formatFloat(r.AvgScore),
			strconv.Itoa(r.NumTables),
			strconv.Itoa(r.BestRank),
			strconv.Itoa(r.WorstRank),
		}
		for _, s := range sparsities {
			if v, ok := gapAt(r, s); ok {
				row = append(row, formatFloat(v))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
