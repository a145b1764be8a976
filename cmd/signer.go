package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/primedictation-export/internal/adapters/presign"
	"github.com/bnema/primedictation-export/internal/config"
)

const signerShutdownTimeout = 10 * time.Second

func newSignerCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signer",
		Short: "Development presign service for email exports",
	}

	cmd.AddCommand(newSignerServeCmd(app))

	return cmd
}

func newSignerServeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve presigned S3 uploads, configured by PDX_SIGNER_* variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadSigner()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			presigner, err := presign.NewS3Presigner(ctx, presign.S3Config{
				Bucket:    cfg.Bucket,
				Region:    cfg.Region,
				Endpoint:  cfg.Endpoint,
				AccessKey: cfg.AccessKey,
				SecretKey: cfg.SecretKey,
				Expiry:    cfg.Expiry,
			})
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:         cfg.ListenAddr,
				Handler:      presign.NewRouter(presigner, []byte(cfg.Secret), app.log),
				ReadTimeout:  cfg.ReadTimeout,
				WriteTimeout: cfg.WriteTimeout,
			}

			serveErr := make(chan error, 1)
			go func() {
				app.log.Info(ctx, "starting presign server", "addr", srv.Addr, "bucket", cfg.Bucket)
				serveErr <- srv.ListenAndServe()
			}()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "presign server listening on %s\n", cfg.ListenAddr)

			select {
			case err := <-serveErr:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("serve presign: %w", err)
			case <-ctx.Done():
			}

			app.log.Info(ctx, "shutting down presign server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), signerShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown presign server: %w", err)
			}
			return nil
		},
	}
}
