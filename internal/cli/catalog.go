package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vibe-dev/academy/internal/daemon"
	"github.com/vibe-dev/academy/internal/domain"
	"github.com/vibe-dev/academy/internal/infra/catalog"
)

func init() {
	catalogCmd.Flags().StringVarP(&catalogFile, "file", "f", "", "YAML catalog to validate and print (default: configured catalog)")
	catalogCmd.Flags().BoolVar(&catalogSecrets, "secrets", false, "Include secret achievements")
	rootCmd.AddCommand(catalogCmd)
}

var (
	catalogFile    string
	catalogSecrets bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the level, achievement and challenge catalogs",
	RunE:  runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) error {
	path := catalogFile
	if path == "" {
		cfg, err := daemon.LoadConfig()
		if err != nil {
			return err
		}
		path = cfg.Catalog.File
	}

	cat, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}
	if err := cat.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := newTable(out)
	fmt.Fprintln(w, "LEVEL\tTITLE\tXP")
	for _, l := range cat.Levels {
		fmt.Fprintf(w, "%d\t%s\t%s\n", l.Level, l.Title, levelRange(l))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	w = newTable(out)
	fmt.Fprintln(w, "ACHIEVEMENT\tTIER\tXP\tREQUIREMENT")
	for _, a := range cat.Achievements {
		if a.Secret && !catalogSecrets {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", a.ID, a.Tier, a.XPReward, describe(a.Requirement))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	w = newTable(out)
	fmt.Fprintln(w, "CHALLENGE\tXP\tTITLE")
	for _, c := range cat.Challenges {
		fmt.Fprintf(w, "%s\t%d\t%s\n", c.ID, c.XPReward, c.Title)
	}
	return w.Flush()
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func levelRange(l domain.LevelInfo) string {
	if l.IsTop() {
		return fmt.Sprintf("%d+", l.MinXP)
	}
	return fmt.Sprintf("%d-%d", l.MinXP, l.MaxXP)
}

func describe(r domain.Requirement) string {
	if r == nil {
		return "-"
	}
	s := fmt.Sprintf("%s >= %d", r.Type(), r.Threshold())
	switch r := r.(type) {
	case domain.LessonComplete:
		if r.CourseID != "" {
			s += " in " + r.CourseID
		}
	case domain.CourseComplete:
		if r.CourseID != "" {
			s = fmt.Sprintf("%s %s", r.Type(), r.CourseID)
		}
	}
	return s
}
