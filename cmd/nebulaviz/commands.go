package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nebulaviz/internal/app"
	"nebulaviz/internal/config"
	"nebulaviz/internal/exporter"
	"nebulaviz/internal/infrastructure"
	"nebulaviz/internal/operations"
	"nebulaviz/internal/security"
	"nebulaviz/pkg/contracts"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	agendaPath string
	keyPath    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "nebulaviz",
		Short:         "Decrypt and summarize an encrypted agenda",
		Version:       contracts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(contracts.GetFullVersionString() + "\n")
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"Path to a YAML config file (default: $"+config.ConfigFileEnv+", ./config.yaml or ./configs/config.yaml)")
	root.PersistentFlags().StringVar(&flags.agendaPath, "agenda", "", "Encrypted agenda file, overrides the config")
	root.PersistentFlags().StringVar(&flags.keyPath, "key", "", "Key file, overrides the config")

	root.AddCommand(
		newServeCmd(flags),
		newReportCmd(flags),
		newExportCmd(flags),
		newEncryptCmd(flags),
		newKeygenCmd(),
	)
	return root
}

func (f *globalFlags) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if f.agendaPath != "" {
		cfg.Agenda.FilePath = f.agendaPath
	}
	if f.keyPath != "" {
		cfg.Agenda.KeyFile = f.keyPath
	}
	return cfg, nil
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and websocket, refreshing the agenda periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			logger, err := infrastructure.InitializeLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = infrastructure.CloseLogFile() }()

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			return application.Run(cmd.Context())
		},
	}
}

func newReportCmd(flags *globalFlags) *cobra.Command {
	var (
		asJSON bool
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run the pipeline once and print the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := runReport(cmd, flags)
			if err != nil {
				return err
			}
			if asJSON {
				if !raw {
					report.Appointments = nil
				}
				return exporter.WriteJSON(cmd.OutOrStdout(), report)
			}
			return printTables(cmd.OutOrStdout(), exporter.Tables(report, raw))
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&raw, "raw", false, "Include every appointment, sorted by date")
	return cmd
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	var (
		format       string
		outDir       string
		appointments bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run the pipeline once and write the report to files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := exporter.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.Paths.ExportDir
			}

			report, err := runReportWith(cmd, cfg)
			if err != nil {
				return err
			}
			exp, err := exporter.New(exporter.Options{
				Dir:                 outDir,
				IncludeAppointments: appointments,
				Logger:              cliLogger(cmd, cfg),
			})
			if err != nil {
				return err
			}
			paths, err := exp.Export(cmd.Context(), report, f)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(exporter.FormatCSV), "Output format: csv, json or xlsx")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default: paths.export_dir)")
	cmd.Flags().BoolVar(&appointments, "appointments", false, "Also export the full appointment listing")
	return cmd
}

func newEncryptCmd(flags *globalFlags) *cobra.Command {
	var (
		in   string
		out  string
		logN uint8
	)
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a plaintext agenda (CSV or JSON) into an envelope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.keyPath == "" {
				return fmt.Errorf("--key is required")
			}
			crypto := security.DefaultEncryptionConfig()
			crypto.LogN = logN
			if err := security.ValidateEncryptionConfig(crypto); err != nil {
				return err
			}

			key, err := security.LoadKey(flags.keyPath)
			if err != nil {
				return err
			}
			defer key.Wipe()

			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("failed to read plaintext: %w", err)
			}
			plaintext := security.NewSecureBuffer(data)
			defer plaintext.Wipe()

			payload, err := security.Encrypt(plaintext.Bytes(), key, crypto)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			if err := os.WriteFile(out, payload, 0o600); err != nil {
				return fmt.Errorf("failed to write envelope: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(payload))
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "Plaintext agenda file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Envelope to write")
	cmd.Flags().Uint8Var(&logN, "logn", security.DefaultEncryptionConfig().LogN, "scrypt cost as log2(N)")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newKeygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Write a new random key file readable only by its owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := security.GenerateKeyFile(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Key file to create; an existing file is never overwritten")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runReport(cmd *cobra.Command, flags *globalFlags) (exporter.Report, error) {
	cfg, err := flags.load()
	if err != nil {
		return exporter.Report{}, err
	}
	return runReportWith(cmd, cfg)
}

func runReportWith(cmd *cobra.Command, cfg *config.Config) (exporter.Report, error) {
	result, err := app.RunOnce(cmd.Context(), cfg, cliLogger(cmd, cfg))
	if err != nil {
		return exporter.Report{}, err
	}
	if result.Status == operations.StatusEmpty {
		fmt.Fprintln(cmd.ErrOrStderr(), "agenda contains no valid appointments")
	}
	return exporter.ReportFromResult(result)
}

// cliLogger keeps stdout free for command output
func cliLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logging := cfg.Logging
	if strings.EqualFold(logging.Level, "info") {
		logging.Level = "warn"
	}
	return infrastructure.NewLoggerWithWriter(logging, cmd.ErrOrStderr())
}

func printTables(w io.Writer, tables []exporter.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, t := range tables {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "== %s\n", t.Name)
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
		for _, row := range t.Rows {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		// flush per table so column widths do not bleed across tables
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
