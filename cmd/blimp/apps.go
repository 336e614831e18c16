package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/blimp/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/blimp/internal/application"
	"github.com/ericfisherdev/blimp/internal/config"
)

func newAppsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List the supported apps and actions",
		Long: `List every registered app, its actions and the payload fields each
action accepts. Required fields are marked with *.`,
		Args: cobra.NoArgs,
		RunE: runApps,
	}
	cmd.Flags().Bool("json", false, "Print the catalog as JSON")
	return cmd
}

func runApps(cmd *cobra.Command, _ []string) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("getting json flag: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry, err := buildRegistry(cfg, upstream.NewTransport(upstream.TransportOptions{}), logger)
	if err != nil {
		return err
	}

	catalog := registry.Catalog()
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(catalog)
	}
	return printCatalog(cmd.OutOrStdout(), catalog)
}

func printCatalog(w io.Writer, catalog []application.AppInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "APP\tACTION\tMODE\tFIELDS")
	for _, app := range catalog {
		for _, act := range app.Actions {
			mode := "write"
			if act.ReadOnly {
				mode = "read"
			}
			fields := make([]string, 0, len(act.Fields))
			for _, f := range act.Fields {
				name := f.Name
				if f.Required {
					name += "*"
				}
				fields = append(fields, name)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", app.Name, act.Name, mode, strings.Join(fields, ", "))
		}
	}
	return tw.Flush()
}
