package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fastygo/proposals/api/transport"
	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/internal/autosave"
	"github.com/fastygo/proposals/internal/config"
	"github.com/fastygo/proposals/internal/infrastructure/snapshot"
	"github.com/fastygo/proposals/pkg/logger"
	"github.com/fastygo/proposals/pkg/proposalclient"
)

type globalOptions struct {
	snapshotPath string
	serverURL    string
	logLevel     string
}

// session bundles what every subcommand needs.
type session struct {
	client    *proposalclient.Client
	store     *snapshot.Store
	scheduler *autosave.Scheduler
	logger    *zap.Logger
}

func openSession(opts *globalOptions) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.snapshotPath != "" {
		cfg.Autosave.SnapshotPath = opts.snapshotPath
	}
	if opts.serverURL != "" {
		cfg.Autosave.ServerURL = opts.serverURL
	}

	log, err := logger.New(logger.Config{Level: opts.logLevel, Encoding: "console", Service: "proposalctl"})
	if err != nil {
		return nil, err
	}

	store, err := snapshot.Open(cfg.Autosave.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}

	client := proposalclient.New(cfg.Autosave.ServerURL, cfg.Autosave.Token)
	scheduler := autosave.New(client, store, autosave.Config{
		Debounce: cfg.Autosave.Debounce,
		MaxAge:   cfg.Autosave.MaxAge,
		Logger:   log,
	})
	return &session{client: client, store: store, scheduler: scheduler, logger: log}, nil
}

func (s *session) close() {
	s.scheduler.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Warn("close snapshot store", zap.Error(err))
	}
	_ = s.logger.Sync()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func syncCmd(opts *globalOptions) *cobra.Command {
	var (
		file   string
		step   int
		submit string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Save a wizard form to the server, keeping a local copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readForm(file)
			if err != nil {
				return err
			}
			var form transport.ProposalRequest
			if err := json.Unmarshal(raw, &form); err != nil {
				return fmt.Errorf("parse form: %w", err)
			}

			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.close()

			// keep the binding of a previous interrupted session
			if _, err := s.scheduler.Restore(autosave.RestoreOptions{ProposalID: form.ID}); err != nil {
				s.logger.Warn("restore local snapshot", zap.Error(err))
			}
			s.scheduler.Update(form, step)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if submit != "" {
				if err := s.scheduler.Submit(ctx, domain.Status(submit)); err != nil {
					return fmt.Errorf("submit failed, local copy kept: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "submitted")
				return nil
			}

			if err := s.scheduler.Flush(ctx); err != nil {
				return fmt.Errorf("server sync failed, form saved locally: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), s.scheduler.Draft())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Form JSON file ('-' reads stdin)")
	cmd.Flags().IntVar(&step, "step", 0, "Current wizard step")
	cmd.Flags().StringVar(&submit, "submit", "", "Submit with this status and clear the local copy (e.g. sent)")
	return cmd
}

func readForm(file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(file)
}

func restoreCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Print the local draft snapshot if it is still fresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.close()

			snap, err := s.scheduler.Restore(autosave.RestoreOptions{})
			if err != nil {
				return err
			}
			if snap == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no local draft")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
}

func clearCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard the local draft and start fresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.close()
			return s.scheduler.StartFresh()
		},
	}
}

func statusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <proposal-id> <status>",
		Short: "Move a proposal to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return s.client.UpdateStatus(ctx, args[0], domain.Status(args[1]))
		},
	}
}
