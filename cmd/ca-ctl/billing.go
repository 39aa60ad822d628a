package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/unikmhz/npui-sub001/pkg/config"
	"github.com/unikmhz/npui-sub001/pkg/database"
	"github.com/unikmhz/npui-sub001/pkg/logger"
)

// Billing commands edit the entities and card bindings the sync pushes to
// the head-end. They never talk to the head-end themselves.

func openDB(cfg *config.Config, log *logger.Logger) (*database.DB, error) {
	return database.NewDB(database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	}, log)
}

func billing(ctx context.Context, cfg *config.Config, log *logger.Logger, cmd string, args []string) (interface{}, error) {
	if err := checkBillingArgs(cmd, args); err != nil {
		return nil, err
	}

	db, err := openDB(cfg, log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	repo := database.NewBillingRepository(db.GetDB())

	switch cmd {
	case "entity":
		id, _ := parseEntityID(args[0])
		e, err := repo.GetEntity(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", id, err)
		}
		cards, err := repo.Cards(ctx, id)
		if err != nil {
			return nil, err
		}
		ents, err := repo.Entitlements(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"entity": e, "cards": cards, "entitlements": ents}, nil

	case "entity-add":
		e := &database.Entity{Name: args[0]}
		if len(args) > 1 {
			e.Address = args[1]
		}
		if len(args) > 2 {
			e.Phone = args[2]
		}
		if err := repo.SaveEntity(ctx, e); err != nil {
			return nil, err
		}
		return e, nil

	case "entity-count":
		n, err := repo.CountEntities(ctx)
		return map[string]interface{}{"entities": n}, err

	case "entity-delete":
		id, _ := parseEntityID(args[0])
		if _, err := repo.GetEntity(ctx, id); err != nil {
			return nil, fmt.Errorf("entity %d: %w", id, err)
		}
		if err := repo.DeleteEntity(ctx, id); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": id}, nil

	case "bind":
		id, _ := parseEntityID(args[0])
		if _, err := repo.GetEntity(ctx, id); err != nil {
			return nil, fmt.Errorf("entity %d: %w", id, err)
		}
		cards := make([]database.AccessCard, 0, len(args)-2)
		for _, a := range args[2:] {
			card, _ := parseCardID(a)
			cards = append(cards, database.AccessCard{EntityID: id, CardID: card, Source: args[1]})
		}
		if err := repo.BindCards(ctx, cards, 0); err != nil {
			return nil, err
		}
		return map[string]interface{}{"entity": id, "source": args[1], "bound": len(cards)}, nil

	case "unbind":
		card, _ := parseCardID(args[1])
		if err := repo.UnbindCard(ctx, card, args[0]); err != nil {
			return nil, err
		}
		return map[string]interface{}{"source": args[0], "unbound": card}, nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

// checkBillingArgs validates arguments before the database is opened
func checkBillingArgs(cmd string, args []string) error {
	switch cmd {
	case "entity", "entity-delete":
		if len(args) != 1 {
			return errUsage
		}
		_, err := parseEntityID(args[0])
		return err
	case "entity-add":
		if len(args) < 1 || len(args) > 3 || args[0] == "" {
			return errUsage
		}
	case "entity-count":
		if len(args) != 0 {
			return errUsage
		}
	case "bind":
		if len(args) < 3 || args[1] == "" {
			return errUsage
		}
		if _, err := parseEntityID(args[0]); err != nil {
			return err
		}
		for _, a := range args[2:] {
			if _, err := parseCardID(a); err != nil {
				return err
			}
		}
	case "unbind":
		if len(args) != 2 || args[0] == "" {
			return errUsage
		}
		_, err := parseCardID(args[1])
		return err
	}
	return nil
}

func parseEntityID(s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("%w: bad entity id %q", errUsage, s)
	}
	return uint(v), nil
}

func parseCardID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad card id %q", errUsage, s)
	}
	return uint32(v), nil
}
