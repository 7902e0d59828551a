package main

import (
	"context"
	"flag"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/internal/config"
	"workflowguard/backend/internal/logging"
	"workflowguard/backend/internal/repository"
	"workflowguard/backend/internal/services"
	"workflowguard/backend/pkg/models"
)

const (
	seedDomain = "localhost"
	seedPortal = int64(1000001)
)

func main() {
	ctx := context.Background()

	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.NewLogger(cfg.Logging.Level, "console")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Connect to DB
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	audit := services.NewAuditRecorder(store, services.SystemClock, logger)
	workflows := services.NewWorkflowService(store, audit, services.SystemClock, logger)
	versions := services.NewVersionService(store, audit, services.SystemClock, logger)

	// 1. Ensure the local account exists
	account, err := store.GetAccountByDomain(ctx, seedDomain)
	switch {
	case apperrors.IsNotFound(err):
		logger.Info("Creating default account", "domain", seedDomain)
		portal := seedPortal
		account = &models.Account{
			Name:     "Local Dev Account",
			Domain:   seedDomain,
			PortalID: &portal,
			PlanID:   cfg.Billing.DefaultPlan,
		}
		if err := store.CreateAccount(ctx, account); err != nil {
			log.Fatalf("Failed to create account: %v", err)
		}
	case err != nil:
		log.Fatalf("Failed to look up account: %v", err)
	default:
		logger.Info("Found existing account", "id", account.ID)
	}

	// 2. Check for existing workflows to prevent duplicates
	existing, err := workflows.List(ctx, account.ID)
	if err != nil {
		log.Fatalf("Failed to list existing workflows: %v", err)
	}
	existingMap := make(map[string]bool)
	for _, w := range existing {
		existingMap[w.SourceID] = true
	}

	// 3. Register workflows with a short version history each
	seeds := []struct {
		SourceID string
		Name     string
		Status   models.WorkflowStatus
		Steps    [][]string
	}{
		{"5001", "Welcome nurture", models.WorkflowStatusActive, [][]string{
			{"send_welcome_email"},
			{"send_welcome_email", "wait_2_days", "send_tips_email"},
			{"send_welcome_email", "wait_3_days", "send_tips_email", "assign_owner"},
		}},
		{"5002", "Lead scoring", models.WorkflowStatusActive, [][]string{
			{"score_form_submit"},
			{"score_form_submit", "score_page_view"},
		}},
		{"5003", "Renewal reminder", models.WorkflowStatusInactive, [][]string{
			{"wait_until_renewal_minus_30", "notify_owner"},
		}},
	}

	seedActor := models.UserActor("seed-script", "Seed Script")
	for _, s := range seeds {
		if existingMap[s.SourceID] {
			logger.Info("Skipping existing workflow", "name", s.Name)
			continue
		}

		wf, err := workflows.Register(ctx, services.RegisterWorkflowInput{
			AccountID: account.ID,
			PortalID:  *account.PortalID,
			SourceID:  s.SourceID,
			Name:      s.Name,
			Status:    s.Status,
			Actor:     seedActor,
		})
		if err != nil {
			log.Printf("Failed to register workflow %s: %v", s.Name, err)
			continue
		}

		for i, steps := range s.Steps {
			snapshotType := models.SnapshotManual
			actor := seedActor
			if i == 0 {
				snapshotType = models.SnapshotDailyBackup
				actor = models.SystemActorRef()
			}
			actions := make([]any, len(steps))
			for j, step := range steps {
				actions[j] = map[string]any{"type": step}
			}
			_, err := versions.CreateVersion(ctx, services.CreateVersionInput{
				WorkflowID:   wf.ID,
				SnapshotType: snapshotType,
				Actor:        actor,
				Data:         models.Document{"name": s.Name, "actions": actions},
			})
			if err != nil {
				log.Printf("Failed to create version %d of %s: %v", i+1, s.Name, err)
			}
		}
		logger.Info("Seeded workflow", "name", s.Name, "id", wf.ID, "versions", len(s.Steps))
	}
	logger.Info("Seeding complete!")
}
