package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/vidblog/internal/client"
)

func (c *commandContext) printJob(cmd *cobra.Command, job *client.Job) error {
	if *c.jsonFlag {
		return writeJSON(cmd, job)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderJob(job))
	return nil
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderJob(job *client.Job) string {
	rows := [][]string{
		{"Job", job.JobID},
		{"Step", job.Step},
		{"State", job.StageState},
	}
	if job.SourceURL != "" {
		rows = append(rows, []string{"Source", job.SourceURL})
	}
	if job.Transcript != nil {
		rows = append(rows, []string{"Transcript", fmt.Sprintf("%d chars, %s, %.0fs", len(job.Transcript.Text), orDash(job.Transcript.Language), job.Transcript.DurationSeconds)})
	}
	if b := job.Blog; b != nil {
		rows = append(rows,
			[]string{"Title", b.Title},
			[]string{"Words", strconv.Itoa(b.WordCount)},
			[]string{"Publish", b.PublishState},
		)
		if b.PostURL != nil {
			rows = append(rows, []string{"Post URL", *b.PostURL})
		}
	}
	if f := job.Failure; f != nil {
		rows = append(rows, []string{"Failure", fmt.Sprintf("%s at %s: %s", f.Code, orDash(f.Stage), f.Message)})
	}
	if e := job.LastError; e != nil {
		rows = append(rows, []string{"Last error", fmt.Sprintf("%s at %s: %s", e.Code, orDash(e.Stage), e.Message)})
	}
	return renderTable([]string{"Field", "Value"}, rows)
}

func renderTable(headers []string, rows [][]string) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignLeft,
			AlignHeader: text.AlignLeft,
			WidthMax:    80,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
