// Command seed applies the schema, loads the starter knowledge graph and
// bootstraps an admin account from SEED_ADMIN_USERNAME, SEED_ADMIN_EMAIL
// and SEED_ADMIN_PASSWORD. It is safe to run repeatedly.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/config"
	"github.com/iliyamo/mindwell/internal/database"
	"github.com/iliyamo/mindwell/internal/knowledge"
	"github.com/iliyamo/mindwell/internal/model"
	"github.com/iliyamo/mindwell/internal/repository"
	"github.com/iliyamo/mindwell/internal/utils"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := config.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.StoreDriver != config.StoreMySQL {
		log.Fatal("seed requires STORE_DRIVER=mysql")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	if _, err := knowledge.Seed(ctx, repository.NewKnowledgeRepo(db), knowledge.DefaultGraph, log); err != nil {
		log.Fatal("seed knowledge graph", zap.Error(err))
	}
	if err := seedAdmin(ctx, repository.NewUserRepo(db), cfg.BcryptCost, log); err != nil {
		log.Fatal("seed admin", zap.Error(err))
	}
}

func seedAdmin(ctx context.Context, users repository.UserStore, cost int, log *zap.Logger) error {
	username := os.Getenv("SEED_ADMIN_USERNAME")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if username == "" || password == "" {
		log.Info("SEED_ADMIN_USERNAME or SEED_ADMIN_PASSWORD not set, skipping admin")
		return nil
	}
	email := os.Getenv("SEED_ADMIN_EMAIL")
	if email == "" {
		email = username + "@localhost"
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	u := &model.User{Username: username, Email: email, PasswordHash: hash, Role: model.RoleAdmin, IsActive: true}
	switch err := users.Create(ctx, u); {
	case errors.Is(err, apperr.ErrConflict):
		log.Info("admin already exists", zap.String("username", username))
		return nil
	case err != nil:
		return err
	}
	log.Info("admin created", zap.Uint64("id", u.ID), zap.String("username", username))
	return nil
}
