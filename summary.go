package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"photosweep/types"
)

const bytesPerMB = 1024 * 1024

// reclaimableMB sums the size of the side each pair does not recommend
func reclaimableMB(pairs []types.SimilarPair) float64 {
	var total float64
	for _, p := range pairs {
		if p.Recommended == types.SideFile1 {
			total += p.SizeMB2
		} else {
			total += p.SizeMB1
		}
	}
	return total
}

func printSummary(w io.Writer, report types.Report) {
	var exact, perceptual int
	for _, p := range report.SimilarImagePairs {
		if p.MatchPhase == types.MatchPhaseExact {
			exact++
		} else {
			perceptual++
		}
	}
	byType := map[types.ErrorType]int{}
	for _, e := range report.ErrorFiles {
		byType[e.ErrorType]++
	}

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Result", "Count"})
	tw.AppendRow(table.Row{"blurry images", humanize.Comma(int64(len(report.BlurryImages)))})
	tw.AppendRow(table.Row{"exact pairs", humanize.Comma(int64(exact))})
	tw.AppendRow(table.Row{"perceptual pairs", humanize.Comma(int64(perceptual))})
	for _, et := range []types.ErrorType{types.ErrorTypeScan, types.ErrorTypeProcessing, types.ErrorTypeFileNotFound} {
		if n := byType[et]; n > 0 {
			tw.AppendRow(table.Row{string(et), humanize.Comma(int64(n))})
		}
	}
	tw.AppendFooter(table.Row{"reclaimable", humanize.IBytes(uint64(reclaimableMB(report.SimilarImagePairs) * bytesPerMB))})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight}})
	tw.SetTitle("Scan summary")

	_, _ = fmt.Fprintln(w, tw.Render())
}
