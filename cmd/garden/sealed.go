package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/garden/archive"
)

var sealedCmd = &cobra.Command{
	Use:   "sealed",
	Short: "List sealed blooms from an archive",
	Long: `Sealed lists the blooms preserved in a run's SQLite archive, highest
insight first. With --insights it also lists each bloom's recorded insights.

Example:
  garden sealed --archive runs/7/garden.db --limit 10
  garden sealed --archive runs/7/garden.db --json`,
	Args: cobra.NoArgs,
	RunE: listSealed,
}

func init() {
	f := sealedCmd.Flags()
	f.String("archive", "", "SQLite archive written by garden run")
	f.Int("limit", 20, "maximum blooms to list (0 = all)")
	f.Bool("insights", false, "include each bloom's insights")
	f.Bool("json", false, "print JSON instead of a table")
}

func listSealed(cmd *cobra.Command, args []string) error {
	path := v.GetString("archive")
	if path == "" {
		return errors.New("--archive is required")
	}

	a, err := archive.Open(path, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	blooms, err := a.Sealed(ctx, v.GetInt("limit"))
	if err != nil {
		return err
	}

	insights := make(map[uuid.UUID][]archive.Insight)
	if v.GetBool("insights") {
		for _, b := range blooms {
			if insights[b.ID], err = a.Insights(ctx, b.ID); err != nil {
				return err
			}
		}
	}

	out := cmd.OutOrStdout()
	if v.GetBool("json") {
		type row struct {
			archive.SealedBloom
			Insights []archive.Insight `json:",omitempty"`
		}
		rows := make([]row, len(blooms))
		for i, b := range blooms {
			rows[i] = row{SealedBloom: b, Insights: insights[b.ID]}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(blooms) == 0 {
		fmt.Fprintln(out, "no sealed blooms")
		return nil
	}
	fmt.Fprintf(out, "%-36s  %-9s  %7s  %8s  %5s  %s\n", "ID", "KIND", "INSIGHT", "LIFETIME", "LINKS", "STAGES")
	for _, b := range blooms {
		fmt.Fprintf(out, "%-36s  %-9s  %7.3f  %8.1f  %5d  %s\n",
			b.ID, b.Kind, b.Insight, b.Lifetime, b.Interactions, strings.Join(b.Stages, ">"))
		for _, in := range insights[b.ID] {
			fmt.Fprintf(out, "    insight tick=%d score=%.3f connections=%d\n", in.Tick, in.Score, len(in.Connections))
		}
	}
	return nil
}
