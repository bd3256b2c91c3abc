package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muffakir/legal-assistant/internal/bootstrap"
	"github.com/muffakir/legal-assistant/internal/config"
	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
	"github.com/muffakir/legal-assistant/internal/infrastructure/dataset"
	"github.com/muffakir/legal-assistant/internal/observability/logging"
)

type services struct {
	answers   ports.LegalAnswerService
	evaluator ports.RetrievalEvaluator
	headers   ports.HeaderEvaluator
	close     func()
}

type servicesFactory func(ctx context.Context, envFile string) (*services, error)

func defaultServices(ctx context.Context, envFile string) (*services, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg := config.Load()
	logger := logging.New(os.Stderr, "cli", cfg.LogLevel, "text")
	slog.SetDefault(logger)

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Service: "cli"})
	if err != nil {
		return nil, err
	}
	return &services{
		answers:   app.Answers,
		evaluator: app.Evaluator,
		headers:   app.Headers,
		close:     app.Close,
	}, nil
}

func newRootCommand(factory servicesFactory) *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "muffakir",
		Short:         "Arabic legal question answering over a statute corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file; missing files are ignored")

	load := func(ctx context.Context) (*services, error) {
		return factory(ctx, envFile)
	}
	cmd.AddCommand(newAskCommand(load))
	cmd.AddCommand(newEvalCommand(load))
	return cmd
}

func newAskCommand(load func(context.Context) (*services, error)) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a legal question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()

			answer, err := svc.answers.Answer(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), answer)
			}
			return printAnswer(cmd.OutOrStdout(), answer)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full answer as JSON")
	return cmd
}

func newEvalCommand(load func(context.Context) (*services, error)) *cobra.Command {
	var (
		datasetPath string
		outPath     string
		k           int
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Measure retrieval recall@k and MRR over a labelled workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cases, err := loadDataset(datasetPath)
			if err != nil {
				return err
			}

			svc, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()

			report, err := svc.evaluator.Evaluate(cmd.Context(), cases, k)
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := writeReportFile(outPath, report); err != nil {
					return err
				}
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "cases: %d\nhits: %d\nrecall@%d: %.4f\nmrr: %.4f\n",
				report.Total, report.Hits, report.K, report.RecallAtK, report.MRR)
			return err
		},
	}
	cmd.Flags().StringVar(&datasetPath, "dataset", "", "Workbook with question and passage columns")
	cmd.Flags().StringVar(&outPath, "out", "", "Optional workbook to write per-question results to")
	cmd.Flags().IntVar(&k, "k", 5, "Passages retrieved per question")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.AddCommand(newEvalHeadersCommand(load))
	return cmd
}

func newEvalHeadersCommand(load func(context.Context) (*services, error)) *cobra.Command {
	var (
		datasetPath string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "headers",
		Short: "Compare question similarity to passages with and without summary headers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cases, err := loadDataset(datasetPath)
			if err != nil {
				return err
			}

			svc, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()

			report, err := svc.headers.EvaluateHeaders(cmd.Context(), cases)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"chunks: %d\nskipped: %d\nwithout header: %.4f\nwith header: %.4f\nimprovement: %.2f%%\n",
				report.Total, report.Skipped, report.AvgWithout, report.AvgWith, report.Improvement*100)
			return err
		},
	}
	cmd.Flags().StringVar(&datasetPath, "dataset", "", "Workbook with question and passage columns; blank questions are generated")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func loadDataset(path string) ([]domain.EvalCase, error) {
	if path == "" {
		return nil, errors.New("--dataset is required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()
	return dataset.LoadXLSX(file)
}

func printAnswer(w io.Writer, answer *domain.Answer) error {
	var b strings.Builder
	b.WriteString(answer.Answer)
	b.WriteString("\n")
	if answer.FallbackReason != "" {
		fmt.Fprintf(&b, "\n(%s)\n", answer.FallbackReason)
	}
	for _, meta := range answer.SourceMetadata {
		if src := sourceLabel(meta); src != "" {
			fmt.Fprintf(&b, "- %s\n", src)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// sourceLabel names a corpus file or, for web answers, a URL.
func sourceLabel(meta map[string]any) string {
	for _, key := range []string{"source", "url"} {
		if v, ok := meta[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func writeReportFile(path string, report *domain.EvalReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := dataset.WriteReportXLSX(f, report); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
