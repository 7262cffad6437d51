package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	dto "github.com/prometheus/client_model/go"

	"github.com/dshills/cardest/internal/fixture"
	"github.com/dshills/cardest/internal/sql/memo"
)

func formatRows(rows float64) string {
	if rows < 0 {
		return "unknown"
	}
	return fmt.Sprintf("%.6g", rows)
}

// renderGroups prints one row per memo group with its labels, operators
// and estimated row count.
func renderGroups(sc *fixture.Scenario, mismatches []fixture.Mismatch, verbose bool) string {
	labels := make(map[memo.GroupID][]string)
	for label, id := range sc.Labels {
		labels[id] = append(labels[id], label)
	}
	failed := make(map[string]bool, len(mismatches))
	for _, m := range mismatches {
		failed[m.Label] = true
	}

	t := table.NewWriter()
	header := table.Row{"Group", "Labels", "Operators", "Rows", "Expected"}
	if verbose {
		header = append(header, "Statistics")
	}
	t.AppendHeader(header)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Rows", Align: text.AlignRight},
		{Name: "Expected", Align: text.AlignRight},
	})

	for i := 1; i <= sc.Memo.NumGroups(); i++ {
		id := memo.GroupID(i)
		g := sc.Memo.Group(id)
		names := labels[id]
		sort.Strings(names)

		ops := make([]string, 0, len(g.Expressions()))
		for _, ge := range g.Expressions() {
			ops = append(ops, ge.Operator().Kind().String())
		}

		rows := "-"
		if g.HasStatistics() {
			rows = formatRows(g.Statistics().RowCount)
		}
		var expected []string
		for _, name := range names {
			want, ok := sc.Fixture.Expect[name]
			if !ok {
				continue
			}
			mark := ""
			if failed[name] {
				mark = " !"
			}
			expected = append(expected, formatRows(want)+mark)
		}

		row := table.Row{fmt.Sprintf("G%d", i), strings.Join(names, ","), strings.Join(ops, " | "), rows, strings.Join(expected, ",")}
		if verbose {
			s := ""
			if g.HasStatistics() {
				s = g.Statistics().String()
			}
			row = append(row, s)
		}
		t.AppendRow(row)
	}
	if len(mismatches) > 0 {
		t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d mismatch(es)", len(mismatches))})
	}
	return t.Render()
}

// renderMetrics prints the samples of every gathered metric family.
func renderMetrics(families []*dto.MetricFamily) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Metric", "Labels", "Value"})
	t.SetColumnConfigs([]table.ColumnConfig{{Name: "Value", Align: text.AlignRight}})
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			pairs := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				pairs = append(pairs, lp.GetName()+"="+lp.GetValue())
			}
			var value string
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				value = fmt.Sprintf("%g", m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				value = fmt.Sprintf("%g", m.GetGauge().GetValue())
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				value = fmt.Sprintf("count=%d sum=%g", h.GetSampleCount(), h.GetSampleSum())
			default:
				continue
			}
			t.AppendRow(table.Row{mf.GetName(), strings.Join(pairs, ","), value})
		}
	}
	return t.Render()
}
