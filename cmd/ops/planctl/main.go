// Command planctl is the operational CLI for plan and usage overrides.
// It talks to the database directly with the same billing services the
// API uses, so audit records and plan rules behave identically.
//
// Usage:
//
//	go run ./cmd/ops/planctl set-plan --user=<id> --plan=pro
//	go run ./cmd/ops/planctl reset-usage --user=<id>
//	go run ./cmd/ops/planctl show-usage --user=<id>
//
// Only DATABASE_URL is required; the full API configuration is not
// loaded because payment and AI credentials are irrelevant here.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"cvforge/internal/billing"
	"cvforge/internal/db"
	"cvforge/internal/types"
)

const commandTimeout = 30 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "planctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: planctl <set-plan|reset-usage|show-usage> [flags]")
	}

	// Local development convenience; ignored when absent.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: dbURL})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	userRepo := db.NewUserRepository(pool)
	usageRepo := db.NewUsageRepository(pool)
	auditRepo := db.NewAuditRepository(pool)
	catalog := billing.NewStaticCatalog()
	clock := billing.SystemClock{}

	switch cmd := args[0]; cmd {
	case "set-plan":
		fs := flag.NewFlagSet("set-plan", flag.ContinueOnError)
		userID := fs.String("user", "", "target user ID")
		plan := fs.String("plan", "", "target plan tier (basic, pro, premium)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *userID == "" || *plan == "" {
			return fmt.Errorf("set-plan requires --user and --plan")
		}

		plans := billing.NewPlanService(userRepo, usageRepo, catalog, clock, auditRepo, logger)
		change, err := plans.SetPlanDirect(ctx, operatorActor(), *userID, types.PlanTier(*plan))
		if err != nil {
			return err
		}
		fmt.Printf("plan changed: %s -> %s (user %s)\n", change.PreviousPlan, change.NewPlan, change.UserID)
		return nil

	case "reset-usage":
		fs := flag.NewFlagSet("reset-usage", flag.ContinueOnError)
		userID := fs.String("user", "", "target user ID")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *userID == "" {
			return fmt.Errorf("reset-usage requires --user")
		}

		if err := usageRepo.ResetForUser(ctx, *userID); err != nil {
			return err
		}
		fmt.Printf("usage counters reset (user %s)\n", *userID)
		return nil

	case "show-usage":
		fs := flag.NewFlagSet("show-usage", flag.ContinueOnError)
		userID := fs.String("user", "", "target user ID")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *userID == "" {
			return fmt.Errorf("show-usage requires --user")
		}

		entitlements := billing.NewEntitlements(catalog, userRepo, usageRepo, clock, logger)
		summary, err := entitlements.Summary(ctx, *userID)
		if err != nil {
			return err
		}
		printSummary(os.Stdout, summary)
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// operatorActor is the audit identity for CLI-driven changes.
func operatorActor() types.Actor {
	return types.Actor{ID: "planctl", Type: types.ActorTypeAdmin, Role: types.RoleAdmin}
}

func printSummary(out *os.File, summary []types.LimitStatus) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FEATURE\tUSED\tLIMIT\tPLAN")
	for _, s := range summary {
		limit := fmt.Sprintf("%d", s.Limit.Value())
		if s.Limit.IsUnlimited() {
			limit = "unlimited"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.Feature, s.Current, limit, s.CurrentPlan)
	}
	w.Flush()
}
