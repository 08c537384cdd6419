package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kebairia/digibankup/internal/config"
	"github.com/kebairia/digibankup/internal/operations"
	"github.com/kebairia/digibankup/internal/producer"
	"github.com/kebairia/digibankup/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last backup and the stored generations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		om, err := operations.NewOperationManager(cfg, config.FlagOverrides{}, consoleLogger(cfg))
		if err != nil {
			return err
		}
		st, err := om.Status()
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Last backup: %s\n", describeLastBackup(st, loc))
		fmt.Fprintf(out, "Backup due:  %t (interval %d days)\n", st.Due, cfg.Settings.BackupInterval)
		fmt.Fprintf(out, "Generations: %d of %d\n", len(st.Generations), cfg.Settings.BackupCount)
		if len(st.Generations) == 0 {
			return nil
		}

		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Generation", "Completed", "Size", "Components"})
		table.SetBorder(false)
		for _, g := range st.Generations {
			table.Append(generationRow(g))
		}
		table.Render()
		return nil
	},
}

func describeLastBackup(st *operations.Status, loc *time.Location) string {
	if st.Origin != state.OriginFile {
		return "never"
	}
	t, err := state.ParseTimestamp(st.LastBackupAt, loc)
	if err != nil {
		return st.LastBackupAt
	}
	return fmt.Sprintf("%s (%s)", t.In(loc).Format(time.DateTime), humanize.Time(t))
}

func generationRow(g operations.GenerationStatus) []string {
	row := []string{strconv.Itoa(g.Number), "-", "-", "-"}
	if g.Report == nil {
		return row
	}
	var size int64
	var ok, total int
	for _, res := range g.Report.Results {
		size += res.SizeBytes
		total++
		if res.Status == producer.StatusSuccess {
			ok++
		}
	}
	row[1] = humanize.Time(g.Report.CompletedAt)
	row[2] = humanize.IBytes(uint64(size))
	row[3] = fmt.Sprintf("%d/%d ok", ok, total)
	return row
}
