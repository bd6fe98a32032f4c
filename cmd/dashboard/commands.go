package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/vitalpolicy-relay/internal/connectors"
	"github.com/xela07ax/vitalpolicy-relay/internal/dashboard"
	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/engine"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
	"github.com/xela07ax/vitalpolicy-relay/internal/media"
)

// app — общие зависимости всех подкоманд
type app struct {
	cfg    *infra.Config
	logger *zap.Logger
	rdb    *redis.Client
	dash   *dashboard.Dashboard
	meals  *dashboard.MealLog
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		relayURL   string
		storeKind  string
		a          = &app{}
	)

	cmd := &cobra.Command{
		Use:           "dashboard",
		Short:         "Policy Dashboard over the vitalpolicy relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context(), configPath, relayURL, storeKind)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&relayURL, "relay", "", "Relay server URL (overrides dashboard.relay_url)")
	cmd.PersistentFlags().StringVar(&storeKind, "store", "", "Local cache: file or redis (overrides dashboard.store)")

	cmd.AddCommand(
		a.showCmd(),
		a.createCmd(),
		a.driftCmd(),
		a.reconcileCmd(),
		a.clearCmd(),
		a.scoresCmd(),
		a.setScoreCmd(),
		a.profilePicCmd(),
		a.uploadCmd(),
		a.mealCmd(),
		a.mealsCmd(),
		a.watchCmd(),
	)
	return cmd
}

func (a *app) init(ctx context.Context, configPath, relayURL, storeKind string) error {
	cfg, err := infra.LoadConfigFile(configPath)
	if err != nil {
		return err
	}
	if relayURL != "" {
		cfg.Dashboard.RelayURL = relayURL
	}
	if storeKind != "" {
		cfg.Dashboard.Store = storeKind
	}
	a.cfg = cfg

	logCfg := cfg.Logger
	logCfg.Format = "console"
	if a.logger, err = infra.NewLogger(logCfg); err != nil {
		return err
	}

	var store dashboard.Store
	switch cfg.Dashboard.Store {
	case "redis":
		store = dashboard.NewRedisStore(a.redis())
	case "file", "":
		store = dashboard.NewFileStore(cfg.Dashboard.StorePath)
	default:
		return fmt.Errorf("unknown store %q (want file or redis)", cfg.Dashboard.Store)
	}

	adapter := connectors.NewHTTPAdapter("relay", cfg.Dashboard.RelayURL, cfg.Dashboard.Timeout)
	if cfg.Dashboard.Token != "" {
		adapter.WithHeader("Authorization", "Bearer "+cfg.Dashboard.Token)
	}

	client := dashboard.NewRelayClient(adapter)
	a.dash = dashboard.New(client, store, a.logger)
	a.meals = dashboard.NewMealLog(client, store, cfg.Dashboard.Timeout, a.logger)
	return a.dash.Load(ctx)
}

func (a *app) redis() *redis.Client {
	if a.rdb == nil {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
	}
	return a.rdb
}

func (a *app) close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored policy, cached health score and drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state: %s\n", a.dash.State())

			if score, ok := a.dash.CachedScore(); ok {
				fmt.Fprintf(out, "cached health score: %s (%s)\n", score, domain.Grade(score))
			} else {
				fmt.Fprintln(out, "cached health score: not set")
			}
			if pic, ok, err := a.dash.ProfilePicture(cmd.Context()); err == nil && ok {
				fmt.Fprintf(out, "profile picture: %s\n", pic)
			}

			policies := a.dash.Policies()
			if len(policies) == 0 {
				fmt.Fprintln(out, "no policies")
				return nil
			}
			if err := printJSON(out, policies); err != nil {
				return err
			}
			printDrift(out, a.dash)
			return nil
		},
	}
}

func printDrift(out io.Writer, d *dashboard.Dashboard) {
	drift, ok := d.Drift()
	if !ok {
		fmt.Fprintln(out, "health points are up to date")
		return
	}
	stored := "not set"
	if drift.Stored != nil {
		stored = drift.Stored.String()
	}
	fmt.Fprintf(out, "drift: policy %s stores %s, cached score is %s; run `dashboard reconcile`\n",
		drift.PolicyID, stored, drift.Cached)
}

func (a *app) createCmd() *cobra.Command {
	var form domain.PolicyForm
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a policy through the relay and store it locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.dash.Create(cmd.Context(), form)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVar(&form.PolicyID, "policy-id", "", "Policy ID")
	cmd.Flags().StringVar(&form.UserID, "user-id", "", "User ID")
	cmd.Flags().StringVar(&form.UserWalletAddress, "wallet", "", "User wallet address")
	cmd.Flags().StringVar(&form.InitialHealthScore, "score", "", "Initial health score")
	cmd.Flags().StringVar(&form.CoverageDuration, "months", "", "Coverage duration in months")
	return cmd
}

func (a *app) driftCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drift",
		Short: "Compare the cached health score with the policy",
		Run: func(cmd *cobra.Command, args []string) {
			printDrift(cmd.OutOrStdout(), a.dash)
		},
	}
}

func (a *app) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Push the cached health score to the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.dash.Reconcile(cmd.Context())
			if errors.Is(err, domain.ErrNoDrift) {
				fmt.Fprintln(cmd.OutOrStdout(), "health points are up to date")
				return nil
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all local policies (the ledger keeps them)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.dash.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "all policies have been cleared")
			return nil
		},
	}
}

func (a *app) scoresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scores",
		Short: "Fetch health scores through the relay and cache the health score",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.dash.RefreshScores(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Fallback {
				fmt.Fprintf(out, "scores unavailable (%v); cache left untouched\n", res.Cause)
			}
			s := res.Scores
			fmt.Fprintf(out, "activity: %s\ndiet:     %s\nhealth:   %s (%s)\nsleep:    %s\n",
				domain.HealthScore(s.ActivityScore), domain.HealthScore(s.DietScore),
				s.Health(), domain.Grade(s.Health()), domain.HealthScore(s.SleepScore))
			return nil
		},
	}
}

func (a *app) setScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-score <value>",
		Short: "Write a health score into the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := domain.ParseHealthScore(args[0])
			if err != nil {
				return err
			}
			if err := a.dash.SetCachedScore(cmd.Context(), score); err != nil {
				return err
			}
			printDrift(cmd.OutOrStdout(), a.dash)
			return nil
		},
	}
}

func (a *app) profilePicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile-pic [url]",
		Short: "Show or set the profile picture URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.dash.SetProfilePicture(cmd.Context(), args[0])
			}
			pic, ok, err := a.dash.ProfilePicture(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no profile picture")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), pic)
			return nil
		},
	}
}

// upload грузит фото через presigned URL релея и печатает ссылку на объект
func (a *app) uploadCmd() *cobra.Command {
	var kind, contentType string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a photo to object storage through the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := media.ParseKind(kind)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			objectURL, err := a.meals.Upload(cmd.Context(), k, filepath.Base(args[0]), contentType, f)
			if err != nil {
				return err
			}
			if k == media.KindProfile {
				if err := a.dash.SetProfilePicture(cmd.Context(), objectURL); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), objectURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "meal", "Photo kind: meal, face or profile (profile also sets the profile picture)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type (default image/jpeg)")
	return cmd
}

func (a *app) mealCmd() *cobra.Command {
	var (
		c     dashboard.MealCapture
		photo string
	)
	cmd := &cobra.Command{
		Use:   "meal",
		Short: "Log a meal: upload the photo, verify the selfie and record the verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			if photo != "" {
				f, err := os.Open(photo)
				if err != nil {
					return err
				}
				defer f.Close()
				c.Photo = f
				c.Filename = filepath.Base(photo)
			}

			entry, err := a.meals.Capture(cmd.Context(), c)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !entry.Verified {
				fmt.Fprintln(out, "verification failed: the selfie does not match the profile picture")
			}
			return printJSON(out, entry)
		},
	}
	cmd.Flags().StringVar(&c.Title, "title", "", "Meal title")
	cmd.Flags().StringVar(&photo, "photo", "", "Meal photo file to upload")
	cmd.Flags().StringVar(&c.MealURL, "meal-url", "", "Already uploaded meal photo URL")
	cmd.Flags().StringVar(&c.SelfieURL, "selfie", "", "Selfie URL taken with the meal")
	cmd.Flags().StringVar(&c.ContentType, "content-type", "", "Photo content type (default image/jpeg)")
	cmd.MarkFlagsMutuallyExclusive("photo", "meal-url")
	return cmd
}

func (a *app) mealsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "meals",
		Short: "List logged meals",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.meals.Entries(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no meals logged")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
}

// watch слушает баллы, которые публикует релей, и зеркалирует их в локальный кэш
func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Mirror health scores published by the relay into the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "watching %s (Ctrl+C to stop)\n", infra.RedisChanHealthScore)

			engine.ListenResilient(ctx, a.redis(), a.logger, infra.RedisChanHealthScore,
				func() error { return a.dash.Load(ctx) },
				func(payload string) {
					score, err := domain.ParseHealthScore(payload)
					if err != nil {
						a.logger.Warn("bad health score message", zap.String("payload", payload), zap.Error(err))
						return
					}
					if err := a.dash.SetCachedScore(ctx, score); err != nil {
						a.logger.Error("cache health score", zap.Error(err))
						return
					}
					fmt.Fprintf(out, "health score %s (%s)\n", score, domain.Grade(score))
					printDrift(out, a.dash)
				})
			return nil
		},
	}
}
