package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"trendsys/internal/trend"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func checkFormat(f string) error {
	if f != formatTable && f != formatJSON {
		return fmt.Errorf("unknown format %q (want table or json)", f)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 8, 64)
}

// table writes tab-separated rows aligned in columns.
func table(w io.Writer, header string, rows []string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, r := range rows {
		fmt.Fprintln(tw, r)
	}
	return tw.Flush()
}

func writeExtrema(w io.Writer, format string, ext []trend.Extremum) error {
	if format == formatJSON {
		if ext == nil {
			ext = []trend.Extremum{}
		}
		return writeJSON(w, ext)
	}
	rows := make([]string, len(ext))
	for i, e := range ext {
		rows[i] = strconv.Itoa(e.Index) + "\t" + num(e.Value)
	}
	return table(w, "INDEX\tVALUE", rows)
}

func writeLine(w io.Writer, format string, line trend.TrendLine) error {
	if format == formatJSON {
		return writeJSON(w, line)
	}
	return table(w, "SLOPE\tINTERCEPT", []string{num(line.Slope) + "\t" + num(line.Intercept)})
}

type segmentOut struct {
	trend.Segment
	Length    int             `json:"length"`
	Direction trend.Direction `json:"direction"`
}

func writeSegments(w io.Writer, format string, segs []trend.Segment) error {
	if format == formatJSON {
		out := make([]segmentOut, len(segs))
		for i, s := range segs {
			out[i] = segmentOut{Segment: s, Length: s.Len(), Direction: s.Direction()}
		}
		return writeJSON(w, out)
	}
	rows := make([]string, len(segs))
	for i, s := range segs {
		adj := "-"
		if s.Reliable {
			adj = num(s.AdjustedRSquared)
		}
		rows[i] = fmt.Sprintf("%d\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s",
			i, s.Start, s.End, s.Len(), s.Direction(),
			num(s.Slope), num(s.Intercept), adj, num(s.RMSE), num(s.DurbinWatson))
	}
	return table(w, "#\tSTART\tEND\tLEN\tDIR\tSLOPE\tINTERCEPT\tADJ_R2\tRMSE\tDW", rows)
}

type presetOut struct {
	Name       string           `json:"name"`
	Thresholds trend.Thresholds `json:"thresholds"`
}

func writePresets(w io.Writer, format string, presets []presetOut) error {
	if format == formatJSON {
		return writeJSON(w, presets)
	}
	rows := make([]string, len(presets))
	for i, p := range presets {
		t := p.Thresholds
		rows[i] = fmt.Sprintf("%s\t%d\t%s\t%s\t%s\t%s\t[%s, %s]\t[%s, %s]",
			p.Name, t.MaxOutliers,
			num(t.SoftAdjRSquaredMin), num(t.HardAdjRSquaredMin),
			num(t.SoftRMSEMultiplier), num(t.HardRMSEMultiplier),
			num(t.SoftDurbinWatsonMin), num(t.SoftDurbinWatsonMax),
			num(t.HardDurbinWatsonMin), num(t.HardDurbinWatsonMax))
	}
	return table(w, "PRESET\tMAX_OUT\tSOFT_R2\tHARD_R2\tSOFT_RMSE\tHARD_RMSE\tSOFT_DW\tHARD_DW", rows)
}
