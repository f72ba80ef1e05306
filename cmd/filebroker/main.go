package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	commonauth "file_broker/server/common/auth"
	"file_broker/server/common/infra/db"
	commonlog "file_broker/server/common/log"
	filemanapp "file_broker/server/fileman/app"
)

func main() {
	root := &cobra.Command{
		Use:           "filebroker",
		Short:         "signed upload and download URL broker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newSweepCommand(), newTokenCommand())

	if err := root.ExecuteContext(context.Background()); err != nil {
		commonlog.Errorf("%v", err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := filemanapp.LoadConfig()
			commonlog.Setup(cfg.Log)
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg filemanapp.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := filemanapp.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize file broker: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		commonlog.Infof("start file broker http server on :%s", cfg.Port)
		if err := server.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		runErr = fmt.Errorf("run file broker http server: %w", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		commonlog.Errorf("shutdown file broker gracefully: %v", err)
	}
	return runErr
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := filemanapp.LoadConfig()
			commonlog.Setup(cfg.Log)
			return db.Migrate(cfg.PostgresDSN)
		},
	}
}

func newSweepCommand() *cobra.Command {
	var (
		olderThan time.Duration
		batch     int
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "remove uploads that were never confirmed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := filemanapp.LoadConfig()
			commonlog.Setup(cfg.Log)
			if cmd.Flags().Changed("older-than") {
				cfg.SweepStaleAfter = olderThan
			}
			if cmd.Flags().Changed("batch") {
				cfg.SweepBatchSize = batch
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			core, err := filemanapp.NewCore(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer core.Close()

			removed, err := core.Files.SweepStaleUploads(ctx, cfg.SweepStaleAfter, cfg.SweepBatchSize)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale uploads\n", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "minimum age of an unconfirmed upload")
	cmd.Flags().IntVar(&batch, "batch", 100, "maximum records removed in one run")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var subject, email string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "mint a development HS256 token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := filemanapp.LoadConfig()
			authSvc, err := commonauth.NewService(cmd.Context(), commonauth.Options{
				Secret:     cfg.JWTSecret,
				TTLMinutes: cfg.JWTTTLMinutes,
				Audience:   cfg.JWTAudience,
				Issuer:     cfg.JWTIssuer,
			})
			if err != nil {
				return err
			}
			token, err := authSvc.GenerateToken(subject, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "caller id placed in the sub claim")
	cmd.Flags().StringVar(&email, "email", "", "optional email claim")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
