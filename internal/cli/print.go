package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/avvvet/csss-services/internal/scansvc/models"
)

func orDash(p *string) string {
	if p == nil || *p == "" {
		return "-"
	}
	return *p
}

func confidence(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p*100, 'f', 1, 64) + "%"
}

func printScans(w io.Writer, scans []*models.Scan) {
	if len(scans) == 0 {
		fmt.Fprintln(w, "No scans.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATIENT\tSTATUS\tPREDICTION\tCONFIDENCE\tUPLOADED")
	for _, s := range scans {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n",
			s.ID, s.PatientID, s.Status.Label(), orDash(s.Prediction), confidence(s.Confidence),
			s.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func printCounts(w io.Writer, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "  %s\t%d\n", k, counts[k])
	}
	tw.Flush()
}
