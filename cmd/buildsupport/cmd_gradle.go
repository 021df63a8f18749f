package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"buildsupport/internal/gradle"
)

var (
	gradleExcludeDeps bool
	gradleNoFail      bool
	gradleCapture     string
)

var gradleCmd = &cobra.Command{
	Use:   "gradle [-- gradle args...]",
	Short: "Run the pinned gradle after ensuring its dependencies",
	RunE:  runGradle,
}

func init() {
	gradleCmd.Flags().BoolVar(&gradleExcludeDeps, "exclude-deps", false, "pass "+gradle.ExcludeDepsFlag+" to gradle")
	gradleCmd.Flags().BoolVar(&gradleNoFail, "no-fail", false, "do not fail when gradle exits non-zero")
	gradleCmd.Flags().StringVar(&gradleCapture, "capture", "", "write gradle's stdout to this file instead of the terminal")
}

func runGradle(cmd *cobra.Command, args []string) error {
	ensurer, closeStore, err := newEnsurer(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	r := &gradle.Runner{
		Binary:  cfg.Gradle.Binary,
		WorkDir: cfg.Gradle.WorkDir,
		Ensurer: ensurer,
		Deps:    cfg.GradleDeps(),
		Stdout:  cmd.OutOrStdout(),
		Stderr:  cmd.ErrOrStderr(),
		Logger:  logger,
	}
	if gradleCapture != "" {
		return captureGradle(cmd, r, args)
	}
	if gradleExcludeDeps {
		_, err = r.RunExcludeDeps(cmd.Context(), args, !gradleNoFail)
	} else {
		_, err = r.Run(cmd.Context(), args, !gradleNoFail)
	}
	return err
}

// captureGradle writes whatever gradle printed to the capture file, even
// when the run failed.
func captureGradle(cmd *cobra.Command, r *gradle.Runner, args []string) error {
	if gradleExcludeDeps {
		args = append(append([]string(nil), args...), gradle.ExcludeDepsFlag)
	}
	out, runErr := r.Output(cmd.Context(), args)
	if runErr != nil && gradleNoFail && errors.Is(runErr, gradle.ErrFailed) {
		runErr = nil
	}
	if out != nil || runErr == nil {
		if err := os.WriteFile(gradleCapture, out, 0o644); err != nil {
			return fmt.Errorf("write capture: %w", err)
		}
	}
	return runErr
}
