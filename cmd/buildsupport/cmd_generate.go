package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"buildsupport/internal/jctf"
)

var (
	generateCorpus string
	generateDest   string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Regenerate the per-backend jctf test sources",
	Long: `Scans the jctf corpus for files carrying the test marker and writes one
generated test per backend variant. Each variant's output directory is wiped
before anything is written.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateCorpus, "corpus", "", "override the corpus root")
	generateCmd.Flags().StringVar(&generateDest, "dest", "", "override the destination root")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	opts, err := cfg.GeneratorOptions()
	if err != nil {
		return err
	}
	if generateCorpus != "" {
		opts.CorpusRoot = generateCorpus
	}
	if generateDest != "" {
		opts.DestRoot = generateDest
	}

	g, err := jctf.New(opts, logger)
	if err != nil {
		return err
	}
	res, err := g.GenerateAll()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "generated %d files from %d tests\n", len(res.Files), res.Candidates)
	return nil
}
