package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"buildsupport/internal/artifactstore"
	"buildsupport/internal/depcache"
)

var ensureCmd = &cobra.Command{
	Use:   "ensure [artifact...]",
	Short: "Fetch named cached artifacts when missing or older than their .sha1",
	Long: `Checks each named artifact against its checksum manifest and downloads it
from the artifact store when the archive is missing or older than the
manifest. Without arguments the gradle dependencies are ensured.`,
	RunE: runEnsure,
}

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Ensure every configured artifact",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ensurer, closeStore, err := newEnsurer(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore()
		return ensurer.EnsureAll(cmd.Context(), cfg.Artifacts...)
	},
}

func runEnsure(cmd *cobra.Command, args []string) error {
	artifacts := cfg.GradleDeps()
	if len(args) > 0 {
		artifacts = make([]depcache.Artifact, 0, len(args))
		for _, name := range args {
			a, ok := cfg.Artifact(name)
			if !ok {
				return fmt.Errorf("unknown artifact %q", name)
			}
			artifacts = append(artifacts, a)
		}
	}

	ensurer, closeStore, err := newEnsurer(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	for _, a := range artifacts {
		status, err := ensurer.Ensure(cmd.Context(), a)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", a.Name, status)
	}
	return nil
}

// newEnsurer opens the configured store. The returned func releases it.
func newEnsurer(ctx context.Context) (*depcache.Ensurer, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := artifactstore.New(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if c, ok := store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("closing artifact store", "error", err)
			}
		}
	}
	ensurer, err := depcache.NewEnsurer(store, logger)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return ensurer, closeStore, nil
}
