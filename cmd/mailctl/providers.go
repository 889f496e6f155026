package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sungwon/mailrelay/internal/provider"
	"github.com/sungwon/mailrelay/internal/registry"
	"github.com/sungwon/mailrelay/internal/storage"
)

// withRegistry opens the database, runs fn against a registry and closes the
// pool afterwards.
func (a *app) withRegistry(ctx context.Context, fn func(*registry.Registry) error) error {
	pool := a.cfg.Database.Pool()
	pool.MinConns, pool.MaxConns = 1, 2
	pool.AppName = "mailctl"
	db, err := storage.NewDB(ctx, pool)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := registry.New(db.Queries(), a.log,
		registry.WithSenderOptions(a.cfg.Mailer.ProviderOptions()),
		registry.WithPinger(db.Ping),
	)
	return fn(reg)
}

func newProvidersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "providers",
		Aliases: []string{"provider"},
		Short:   "Manage the provider registry",
	}
	cmd.AddCommand(
		newProvidersListCmd(a),
		newProvidersAddCmd(a),
		newProvidersUpdateCmd(a),
		newProvidersRemoveCmd(a),
		newProvidersEnableCmd(a, true),
		newProvidersEnableCmd(a, false),
		newProvidersStatsCmd(a),
		newProvidersTemplatesCmd(),
		newProvidersResetDailyCmd(a),
		newProvidersSeedCmd(a),
	)
	return cmd
}

func newProvidersListCmd(a *app) *cobra.Command {
	var enabledOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(cmd.Context(), func(reg *registry.Registry) error {
				providers, err := reg.List(cmd.Context(), enabledOnly)
				if err != nil {
					return err
				}
				printProviders(cmd.OutOrStdout(), providers)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "only enabled providers")
	return cmd
}

func newProvidersAddCmd(a *app) *cobra.Command {
	var (
		req   registry.AddRequest
		creds []string
	)
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Register a provider",
		Example: `  mailctl providers add brevo --type brevo --cred api_key=xkeysib-...
  mailctl providers add gmail --type smtp-gmail --cred host=smtp.gmail.com --cred username=me --cred password=app-pass`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseCredentials(creds)
			if err != nil {
				return err
			}
			req.Name = args[0]
			req.Credentials = m
			if req.Type == "" {
				req.Type = req.Name
			}

			return a.withRegistry(cmd.Context(), func(reg *registry.Registry) error {
				p, err := reg.Add(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s, priority %d)\n", p.Name, p.Type, p.Priority)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Type, "type", "", "provider type (see 'providers templates'); defaults to NAME")
	cmd.Flags().StringArrayVar(&creds, "cred", nil, "credential field as key=value (repeatable)")
	cmd.Flags().IntVar(&req.Priority, "priority", 0, "static priority, lower is preferred (default: the provider type's built-in priority)")
	cmd.Flags().IntVar(&req.DailyLimit, "daily-limit", 0, "informational daily send limit")
	cmd.Flags().BoolVar(&req.Disabled, "disabled", false, "register without enabling")
	return cmd
}

func newProvidersUpdateCmd(a *app) *cobra.Command {
	var (
		creds      []string
		priority   int
		enabled    bool
		dailyLimit int
	)
	cmd := &cobra.Command{
		Use:   "update NAME",
		Short: "Change credentials, priority, enabled state or daily limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u registry.Update
			if len(creds) > 0 {
				m, err := parseCredentials(creds)
				if err != nil {
					return err
				}
				u.Credentials = m
			}
			flags := cmd.Flags()
			if flags.Changed("priority") {
				u.Priority = &priority
			}
			if flags.Changed("enabled") {
				u.Enabled = &enabled
			}
			if flags.Changed("daily-limit") {
				u.DailyLimit = &dailyLimit
			}

			return a.withRegistry(cmd.Context(), func(reg *registry.Registry) error {
				p, err := reg.Update(cmd.Context(), args[0], u)
				if err != nil {
					return err
				}
				printProviders(cmd.OutOrStdout(), []registry.Provider{p})
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&creds, "cred", nil, "replace credentials with key=value pairs (repeatable)")
	cmd.Flags().IntVar(&priority, "priority", 0, "static priority")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "enabled state")
	cmd.Flags().IntVar(&dailyLimit, "daily-limit", 0, "daily send limit")
	return cmd
}

func newProvidersRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a provider and its statistics",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(cmd.Context(), func(reg *registry.Registry) error {
				if err := reg.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
}

func newProvidersEnableCmd(a *app, enable bool) *cobra.Command {
	use, short := "disable NAME", "Disable a provider"
	if enable {
		use, short = "enable NAME", "Enable a provider"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(cmd.Context(), func(reg *registry.Registry) error {
				set := reg.Disable
				if enable {
					set = reg.Enable
				}
				p, err := set(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%v\n", p.Name, p.Enabled)
				return nil
			})
		},
	}
}

func newProvidersStatsCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats NAME",
		Short: "Show totals and daily history for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(cmd.Context(), func(reg *registry.Registry) error {
				st, err := reg.Stats(cmd.Context(), args[0], days)
				if err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", registry.DefaultHistoryDays, "history window in days")
	return cmd
}

func newProvidersTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List provider types and their credential fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tKIND\tPRIORITY\tREQUIRED\tOPTIONAL")
			for _, t := range provider.Templates() {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", t.Type, t.Kind, t.Priority,
					strings.Join(t.RequiredFields, ","), strings.Join(t.OptionalFields, ","))
			}
			return tw.Flush()
		},
	}
}

func newProvidersResetDailyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-daily",
		Short: "Reset every provider's used-today counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(cmd.Context(), func(reg *registry.Registry) error {
				n, err := reg.ResetDailyLimits(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %d providers\n", n)
				return nil
			})
		},
	}
}

func newProvidersSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Register every provider configured in the environment (empty registry only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(cmd.Context(), func(reg *registry.Registry) error {
				added, err := reg.SeedFromEnv(cmd.Context())
				if err != nil {
					return err
				}
				if len(added) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing seeded (registry populated or no credentials in environment)")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %s\n", strings.Join(added, ", "))
				return nil
			})
		},
	}
}

// parseCredentials turns key=value pairs into a credential map.
func parseCredentials(pairs []string) (map[string]string, error) {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("credential %q must be key=value", p)
		}
		m[k] = v
	}
	return m, nil
}

func printProviders(w io.Writer, providers []registry.Provider) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tENABLED\tPRIORITY\tUSED TODAY\tSUCCESS\tFAILURE\tLAST USED")
	for _, p := range providers {
		last := "-"
		if p.LastUsed != nil {
			last = p.LastUsed.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%d\t%d/%d\t%d\t%d\t%s\n",
			p.Name, p.Type, p.Enabled, p.Priority, p.UsedToday, p.DailyLimit,
			p.SuccessCount, p.FailureCount, last)
	}
	tw.Flush()
}

func printStats(w io.Writer, st registry.Stats) {
	fmt.Fprintf(w, "Provider:     %s (%s)\n", st.Name, st.Type)
	fmt.Fprintf(w, "Enabled:      %v\n", st.Enabled)
	fmt.Fprintf(w, "Priority:     %d\n", st.Priority)
	fmt.Fprintf(w, "Daily usage:  %s\n", st.DailyUsage)
	fmt.Fprintf(w, "Sent/failed:  %d/%d (%.1f%%)\n", st.TotalSent, st.TotalFailed, st.SuccessRate)
	if len(st.History) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nDATE\tSENT\tFAILED")
	for _, d := range st.History {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", d.Date, d.Sent, d.Failed)
	}
	tw.Flush()
}
