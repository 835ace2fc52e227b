// Package report renders a submission result for humans (tables) or tools
// (json, yaml).
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	json "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"ghidra_auto_analysis/analysis-service/pkg/result"
)

// Format is an output format for Write.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts table, json or yaml in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

type document struct {
	Result        *result.Result         `json:"result"`
	Supplementary []result.Supplementary `json:"supplementary"`
}

// Write renders res and its supplementary files to w.
func Write(w io.Writer, format Format, res *result.Result, sups []result.Supplementary) error {
	if res == nil {
		res = result.New()
	}
	doc := document{Result: res, Supplementary: sups}
	switch format {
	case FormatTable:
		return writeTables(w, doc)
	case FormatJSON:
		return writeJSON(w, doc)
	case FormatYAML:
		return writeYAML(w, doc)
	}
	return fmt.Errorf("unknown output format %q", format)
}

func writeTables(w io.Writer, doc document) error {
	for _, s := range doc.Result.Sections {
		t := newTable(w, s.TitleText)
		t.AppendHeader(table.Row{"Key", "Value"})
		for _, kv := range s.Body.Items() {
			t.AppendRow(table.Row{kv.Key, kv.Value})
		}
		t.Render()

		if s.Tags.Len() > 0 {
			t := newTable(w, "Tags")
			t.AppendHeader(table.Row{"Type", "Value"})
			t.SetColumnConfigs([]table.ColumnConfig{
				{Number: 1, AutoMerge: true},
			})
			for _, typ := range s.Tags.Types() {
				for _, v := range s.Tags.Get(typ) {
					t.AppendRow(table.Row{typ, v})
				}
			}
			t.Render()
		}
	}

	if len(doc.Supplementary) > 0 {
		t := newTable(w, "Supplementary")
		t.AppendHeader(table.Row{"Name", "Description", "Relation", "Size", "SHA256", "Path"})
		for _, s := range doc.Supplementary {
			t.AppendRow(table.Row{s.Name, s.Description, s.ParentRelation, s.Size, s.SHA256, s.Path})
		}
		t.Render()
	}
	return nil
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleLight)
	return t
}

func writeJSON(w io.Writer, doc document) error {
	data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// writeYAML goes through JSON so the ordered bodies keep their order.
func writeYAML(w io.Writer, doc document) error {
	data, err := json.ConfigCompatibleWithStandardLibrary.Marshal(doc)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	resetStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}
