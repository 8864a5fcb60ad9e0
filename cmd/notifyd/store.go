package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/clinicnotify/pkg/config"
	"github.com/dmitrymomot/clinicnotify/pkg/httpserver"
	"github.com/dmitrymomot/clinicnotify/pkg/logger"
	"github.com/dmitrymomot/clinicnotify/pkg/mongo"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications/mongostore"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications/pgstore"
	"github.com/dmitrymomot/clinicnotify/pkg/pg"
)

// backend is an opened notification store plus the directory that lives
// next to it.
type backend struct {
	storage   notifications.Storage
	directory notifications.RecipientDirectory
	check     *httpserver.Check
	close     func(context.Context)
}

func openBackend(ctx context.Context, cfg appConfig, log *slog.Logger) (*backend, error) {
	switch strings.ToLower(cfg.Store) {
	case "postgres", "pg":
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return nil, fmt.Errorf("postgres config: %w", err)
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgCfg, log); err != nil {
			pool.Close()
			return nil, err
		}
		return &backend{
			storage:   pgstore.New(pool),
			directory: pgstore.NewDirectory(pool),
			check:     &httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
			close:     func(context.Context) { pool.Close() },
		}, nil

	case "mongo", "mongodb":
		var mongoCfg mongo.Config
		if err := config.Load(&mongoCfg); err != nil {
			return nil, fmt.Errorf("mongo config: %w", err)
		}
		db, err := mongo.ConnectDatabase(ctx, mongoCfg)
		if err != nil {
			return nil, err
		}
		store := mongostore.New(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = db.Client().Disconnect(ctx)
			return nil, err
		}
		return &backend{
			storage:   store,
			directory: mongostore.NewDirectory(db),
			check:     &httpserver.Check{Name: "mongo", Fn: mongo.Healthcheck(db.Client())},
			close: func(ctx context.Context) {
				if err := db.Client().Disconnect(ctx); err != nil {
					log.WarnContext(ctx, "mongo disconnect failed", logger.Error(err))
				}
			},
		}, nil

	case "memory", "":
		directory := notifications.NewMemoryDirectory()
		if cfg.DirectorySeed != "" {
			users, err := loadSeed(cfg.DirectorySeed)
			if err != nil {
				return nil, err
			}
			for _, u := range users {
				directory.Put(u)
			}
			log.InfoContext(ctx, "memory directory seeded", logger.Count(len(users)))
		}
		log.WarnContext(ctx, "using in-memory notification store; data is lost on restart")
		return &backend{
			storage:   notifications.NewMemoryStorage(),
			directory: directory,
			close:     func(context.Context) {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store)
	}
}

type seedUser struct {
	ID        int64  `yaml:"id"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Role      string `yaml:"role"`
}

// loadSeed reads recipients from a YAML file:
//
//	- id: 7
//	  first_name: Alice
//	  last_name: Moss
//	  role: PATIENT
func loadSeed(path string) ([]notifications.Recipient, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory seed: %w", err)
	}
	var users []seedUser
	if err := yaml.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("parse directory seed: %w", err)
	}

	out := make([]notifications.Recipient, 0, len(users))
	for i, u := range users {
		if u.ID <= 0 {
			return nil, fmt.Errorf("directory seed entry %d: id must be positive", i)
		}
		role := notifications.Role(strings.ToUpper(u.Role))
		if role != notifications.RoleAdmin {
			role = notifications.RolePatient
		}
		out = append(out, notifications.Recipient{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Role: role})
	}
	return out, nil
}
