// Command triagecli exposes the triage core's two public operations —
// triage(archive_path) and build_report(extension_db_id) — as standalone
// subcommands, per SPEC_FULL.md §6, for operators running the core
// without the out-of-scope HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	log        = logrus.New()
	configPath string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("triagecli failed")
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "triagecli",
		Short: "Static triage core for editor-extension marketplace packages",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.AddCommand(newTriageCmd())
	root.AddCommand(newReportCmd())
	return root
}

func init() {
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
