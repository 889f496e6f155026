package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sungwon/mailrelay/internal/bootstrap"
	"github.com/sungwon/mailrelay/internal/mailer"
)

// messageFlags are shared by send and bulk.
type messageFlags struct {
	subject  string
	html     string
	htmlFile string
	provider string
}

func (f *messageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.subject, "subject", "", "message subject")
	cmd.Flags().StringVar(&f.html, "html", "", "HTML body")
	cmd.Flags().StringVar(&f.htmlFile, "html-file", "", "read the HTML body from a file")
	cmd.Flags().StringVar(&f.provider, "provider", "", "try this provider first")
	cmd.MarkFlagsMutuallyExclusive("html", "html-file")
	_ = cmd.MarkFlagRequired("subject")
}

func (f *messageFlags) body() (string, error) {
	if f.htmlFile != "" {
		b, err := os.ReadFile(f.htmlFile)
		if err != nil {
			return "", fmt.Errorf("read html file: %w", err)
		}
		return string(b), nil
	}
	if f.html == "" {
		return "", errors.New("one of --html or --html-file is required")
	}
	return f.html, nil
}

func newSendCmd(a *app) *cobra.Command {
	var msg messageFlags
	var to string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message through the provider rotation",
		RunE: func(cmd *cobra.Command, args []string) error {
			html, err := msg.body()
			if err != nil {
				return err
			}

			stack, err := bootstrap.Build(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			defer stack.Close()

			res, err := stack.Service.SendSingle(cmd.Context(), to, msg.subject, html, msg.provider)
			if err != nil {
				return err
			}
			// Flush pending stats writes before the pool closes.
			stack.Service.Mailer().Wait()

			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("delivery failed: %s", res.Error)
			}
			return nil
		},
	}

	msg.register(cmd)
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newBulkCmd(a *app) *cobra.Command {
	var msg messageFlags
	var (
		csvPath             string
		out                 string
		batchSize           int
		concurrency         int
		skipPersonalization bool
	)

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Send a personalized message to every recipient in a CSV file",
		Long: `Reads recipients from a CSV file with email and name columns and sends
the message to each one. {{name}} and {{email}} in the subject and body are
replaced per recipient.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			html, err := msg.body()
			if err != nil {
				return err
			}

			f, err := os.Open(csvPath)
			if err != nil {
				return fmt.Errorf("open csv: %w", err)
			}
			recipients, err := readRecipients(f)
			f.Close()
			if err != nil {
				return err
			}
			if len(recipients) == 0 {
				return errors.New("csv contains no recipients")
			}

			stack, err := bootstrap.Build(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			defer stack.Close()

			stderr := cmd.ErrOrStderr()
			report, err := stack.Service.SendBulk(cmd.Context(), recipients, msg.subject, html, mailer.BulkOptions{
				Provider:            msg.provider,
				BatchSize:           batchSize,
				Concurrency:         concurrency,
				SkipPersonalization: skipPersonalization,
				Progress:            progressPrinter(stderr),
			})
			stack.Service.Mailer().Wait()
			if report == nil {
				return err
			}
			fmt.Fprintln(stderr)

			printBulkSummary(cmd.OutOrStdout(), report)
			if out != "" {
				if werr := writeReport(out, report); werr != nil {
					return werr
				}
			}
			// A cancelled run still printed what it managed to send.
			return err
		},
	}

	msg.register(cmd)
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file with email,name columns")
	cmd.Flags().StringVar(&out, "out", "", "write the full JSON report to this file")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "recipients per batch (default from config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel sends within a batch (default from config)")
	cmd.Flags().BoolVar(&skipPersonalization, "skip-personalization", false, "send the subject and body verbatim")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provider health and priority order",
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := bootstrap.Build(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			defer stack.Close()

			out := map[string]interface{}{"mailer": stack.Service.Status()}
			if stack.Registry != nil {
				out["providers"] = stack.Registry.HealthCheck(cmd.Context())
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

// progressPrinter redraws a single progress line.
func progressPrinter(w io.Writer) mailer.ProgressFunc {
	return func(done, total int) {
		fmt.Fprintf(w, "\rsent %d/%d (%.0f%%)", done, total, float64(done)*100/float64(total))
	}
}

func printBulkSummary(w io.Writer, r *mailer.BulkReport) {
	fmt.Fprintf(w, "Total:        %d\n", r.Total)
	fmt.Fprintf(w, "Sent:         %d\n", len(r.Sent))
	fmt.Fprintf(w, "Failed:       %d\n", len(r.Failed))
	fmt.Fprintf(w, "Success rate: %.1f%%\n", r.SuccessRate)
	fmt.Fprintf(w, "Providers:    %v\n", r.ProvidersUsed)
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed %s: %s\n", f.Recipient, f.Error)
	}
}

func writeReport(path string, r *mailer.BulkReport) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
