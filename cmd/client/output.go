package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/docsync/internal/docsdk"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	red   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

type printer struct {
	out    io.Writer
	format string
}

func newPrinter(cmd *cobra.Command) (*printer, error) {
	format := formatText
	if f := cmd.Flag("output"); f != nil {
		format = f.Value.String()
	}
	switch format {
	case formatText, formatJSON, formatYAML:
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	return &printer{out: cmd.OutOrStdout(), format: format}, nil
}

// print writes v in the structured formats, or calls text otherwise
func (p *printer) print(v any, text func(w io.Writer)) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	text(p.out)
	return nil
}

// done prints a confirmation line in text mode only
func (p *printer) done(format string, args ...any) {
	if p.format == formatText {
		fmt.Fprintln(p.out, green.Render("✔")+" "+fmt.Sprintf(format, args...))
	}
}

func (p *printer) node(n *docsdk.Node) error {
	return p.print(n, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Ref\t%s\n", n.Ref)
		fmt.Fprintf(tw, "Name\t%s\n", cyan.Render(n.Name))
		fmt.Fprintf(tw, "Type\t%s\n", n.Type)
		fmt.Fprintf(tw, "Path\t%s\n", n.Path)
		if n.Type == "content" {
			fmt.Fprintf(tw, "Mime type\t%s\n", n.MimeType)
			fmt.Fprintf(tw, "Size\t%s\n", humanize.Bytes(uint64(n.Size)))
		}
		fmt.Fprintf(tw, "Version\t%d\n", n.Version)
		fmt.Fprintf(tw, "Modified\t%s\n", humanize.Time(n.Modified))
		tw.Flush()
	})
}

func (p *printer) nodes(nodes []*docsdk.Node) error {
	if nodes == nil {
		nodes = []*docsdk.Node{}
	}
	return p.print(nodes, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, gray.Render("REF")+"\t"+gray.Render("TYPE")+"\t"+gray.Render("SIZE")+"\t"+gray.Render("MODIFIED")+"\t"+gray.Render("NAME"))
		for _, n := range nodes {
			size := "-"
			if n.Type == "content" {
				size = humanize.Bytes(uint64(n.Size))
			}
			name := n.Name
			if n.Type != "content" {
				name = cyan.Render(n.Name + "/")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.Ref, n.Type, size, humanize.Time(n.Modified), name)
		}
		tw.Flush()
	})
}
