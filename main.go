package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-backend/internal/catalog"
	"library-backend/internal/membership"
	"library-backend/internal/platform/config"
	"library-backend/internal/platform/db"
	"library-backend/internal/platform/logging"
	"library-backend/internal/server"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "library",
		Short:         "Library catalog and lending backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config.yaml")
	root.AddCommand(serveCmd(), migrateCmd(), createUserCmd(), importBooksCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup は設定読み込み・ロガー・DB接続をまとめて行う
func setup() (*config.Config, *logrus.Logger, *sqlx.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log := logging.New(cfg.Log)

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, nil, nil, err
	}
	log.WithFields(logrus.Fields{"driver": cfg.DB.Driver, "mode": cfg.Mode}).Info("connected to DB")
	return cfg, log, conn, nil
}

func serveCmd() *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, conn, err := setup()
			if err != nil {
				return err
			}
			defer conn.Close()

			if autoMigrate {
				if err := db.Migrate(cmd.Context(), conn); err != nil {
					return err
				}
			}

			if cfg.Mode == "release" {
				gin.SetMode(gin.ReleaseMode)
			}
			r := server.NewRouter(cfg, conn, server.NewServices(conn, cfg, log), log)

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				cert, key := cfg.Server.Certificate.Cert, cfg.Server.Certificate.Key
				var err error
				if cert != "" && key != "" {
					log.Infof("listening on https://%s", cfg.Server.Addr)
					err = srv.ListenAndServeTLS(cert, key)
				} else {
					log.Infof("listening on http://%s", cfg.Server.Addr)
					err = srv.ListenAndServe()
				}
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			// Graceful shutdown
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-quit:
			}
			log.Info("shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables for the configured driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, conn, err := setup()
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.Migrate(cmd.Context(), conn); err != nil {
				return err
			}
			log.Info("schema is up to date")
			return nil
		},
	}
}

// readPassword reads a password without echo when stdin is a terminal.
func readPassword(prompt string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Print(prompt)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func createUserCmd() *cobra.Command {
	var email string
	var staff bool
	cmd := &cobra.Command{
		Use:   "createuser <username>",
		Short: "Create a user account (use --staff for librarians)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, conn, err := setup()
			if err != nil {
				return err
			}
			defer conn.Close()

			password, err := readPassword("Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			svc := membership.NewService(conn, log)
			req := membership.CreateUserRequest{Username: args[0], Email: email, Password: password}
			var u membership.UserResponse
			if staff {
				u, err = svc.CreateStaffUser(cmd.Context(), req)
			} else {
				u, err = svc.CreateUser(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			fmt.Printf("created user %s (id=%s, staff=%t)\n", u.Username, u.ID, u.IsStaff)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().BoolVar(&staff, "staff", false, "grant staff permissions")
	return cmd
}

func importBooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-books <file.csv>",
		Short: "Bulk-create books from a CSV file with a header row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, conn, err := setup()
			if err != nil {
				return err
			}
			defer conn.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := catalog.NewService(conn, log).ImportBooksCSV(cmd.Context(), f)
			if err != nil {
				return err
			}
			for _, r := range res.Results {
				if !r.Ok {
					fmt.Printf("row %d: %s\n", r.Row, *r.Error)
				}
			}
			fmt.Printf("imported %d of %d rows (%d failed)\n", res.OkCount, res.Total, res.NgCount)
			return nil
		},
	}
}
