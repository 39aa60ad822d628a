package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/unikmhz/npui-sub001/pkg/access"
	"github.com/unikmhz/npui-sub001/pkg/config"
	"github.com/unikmhz/npui-sub001/pkg/database"
	"github.com/unikmhz/npui-sub001/pkg/lock"
	"github.com/unikmhz/npui-sub001/pkg/logger"
	"github.com/unikmhz/npui-sub001/pkg/network"
	"github.com/unikmhz/npui-sub001/pkg/protocol"
)

var errUsage = errors.New("invalid arguments")

func dispatch(ctx context.Context, cfg *config.Config, log *logger.Logger, cmd string, args []string) (interface{}, error) {
	client := newClient(cfg, log)

	switch cmd {
	case "version":
		var v protocol.Version
		err := withSession(ctx, cfg, client, false, func() (err error) {
			v, err = client.Version()
			return err
		})
		return map[string]interface{}{"version": v.String(), "build": v.Build, "text": v.Text}, err

	case "count":
		if len(args) < 1 || len(args) > 2 {
			return nil, errUsage
		}
		kind, err := protocol.ParseDataKind(args[0])
		if err != nil {
			return nil, err
		}
		subtype, err := optUint8(args, 1)
		if err != nil {
			return nil, err
		}
		var n uint32
		err = withSession(ctx, cfg, client, false, func() (err error) {
			n, err = client.Count(kind, subtype, nil)
			return err
		})
		return map[string]interface{}{"kind": kind.String(), "count": n}, err

	case "get":
		if len(args) < 3 || len(args) > 4 {
			return nil, errUsage
		}
		kind, err := protocol.ParseDataKind(args[0])
		if err != nil {
			return nil, err
		}
		from, to, err := parseRange(args[1], args[2])
		if err != nil {
			return nil, err
		}
		subtype, err := optUint8(args, 3)
		if err != nil {
			return nil, err
		}
		var records []protocol.Record
		err = withSession(ctx, cfg, client, false, func() (err error) {
			records, err = client.Get(kind, from, to, subtype, nil)
			return err
		})
		views := make([]interface{}, len(records))
		for i, r := range records {
			views[i] = recordView(from+uint32(i), r)
		}
		return views, err

	case "find":
		if len(args) != 2 {
			return nil, errUsage
		}
		kind, err := protocol.ParseDataKind(args[0])
		if err != nil {
			return nil, err
		}
		var ids []uint32
		err = withSession(ctx, cfg, client, false, func() (err error) {
			ids, err = client.Find(kind, 0, args[1])
			return err
		})
		return map[string]interface{}{"kind": kind.String(), "query": args[1], "ids": ids}, err

	case "subs":
		if len(args) != 2 {
			return nil, errUsage
		}
		from, to, err := parseRange(args[0], args[1])
		if err != nil {
			return nil, err
		}
		var masks []protocol.Mask
		err = withSession(ctx, cfg, client, false, func() (err error) {
			masks, err = client.GetSubscriptions(from, to)
			return err
		})
		out := make([]map[string]interface{}, len(masks))
		for i, m := range masks {
			out[i] = map[string]interface{}{"id": from + uint32(i), "slots": m.Slots()}
		}
		return out, err

	case "set-subs":
		if len(args) < 3 || len(args) > 4 {
			return nil, errUsage
		}
		from, to, err := parseRange(args[0], args[1])
		if err != nil {
			return nil, err
		}
		mask, err := protocol.ParseMask(args[2])
		if err != nil {
			return nil, err
		}
		prio, err := optUint8(args, 3)
		if err != nil {
			return nil, err
		}
		err = withSession(ctx, cfg, client, true, func() error {
			return client.SetSubscriptions(from, to, mask, prio)
		})
		return map[string]interface{}{"from": from, "to": to, "slots": mask.Slots(), "ok": err == nil}, err

	case "bus-status":
		var raw []byte
		err := withSession(ctx, cfg, client, false, func() (err error) {
			raw, err = client.BusStatus()
			return err
		})
		return map[string]interface{}{"raw": hex.EncodeToString(raw)}, err

	case "sync-all":
		return syncAll(ctx, cfg, log, client)

	case "entity", "entity-add", "entity-count", "entity-delete", "bind", "unbind":
		return billing(ctx, cfg, log, cmd, args)

	default:
		return nil, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func syncAll(ctx context.Context, cfg *config.Config, log *logger.Logger, client *network.Client) (interface{}, error) {
	db, err := openDB(cfg, log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	var locker lock.Locker
	if cfg.Redis.Enabled {
		rdb, err := lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rdb.Close() }()
		locker = lock.NewRedisLocker(rdb)
	}

	syncer := access.NewSyncer(access.SyncerConfig{
		Username: cfg.Headend.Username,
		Password: cfg.Headend.Password,
		LockKey:  cfg.Sync.LockKey,
		LockTTL:  cfg.Sync.LockTTL,
		Updater: access.UpdaterConfig{
			Source:    cfg.Sync.Source,
			RateLimit: cfg.Sync.RateLimit,
			Burst:     cfg.Sync.Burst,
		},
	}, client, database.NewBillingRepository(db.GetDB()), locker, log, nil, nil)
	runs := database.NewSyncRunRepository(db.GetDB())
	runs.SetRetention(cfg.Sync.HistoryRetention)
	syncer.SetHistory(runs)

	return syncer.Sync(ctx)
}

func parseRange(a, b string) (uint32, uint32, error) {
	from, err := strconv.ParseUint(a, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad id %q", errUsage, a)
	}
	to, err := strconv.ParseUint(b, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad id %q", errUsage, b)
	}
	return uint32(from), uint32(to), nil
}

func optUint8(args []string, i int) (uint8, error) {
	if len(args) <= i {
		return 0, nil
	}
	v, err := strconv.ParseUint(args[i], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", errUsage, args[i])
	}
	return uint8(v), nil
}

func recordView(id uint32, r protocol.Record) map[string]interface{} {
	switch v := r.(type) {
	case *protocol.Subscriber:
		return map[string]interface{}{
			"id":           id,
			"active":       v.Active,
			"expired":      v.Expired,
			"admin_status": v.AdminStatus.String(),
			"name":         v.Name,
			"address":      v.Address,
			"phone":        v.Phone,
			"description":  v.Description,
			"expiry":       v.Expiry.String(),
			"slots":        v.Mask.Slots(),
		}
	case *protocol.Package:
		return map[string]interface{}{"id": id, "name": v.Name, "flag": v.Flag}
	case *protocol.LogEntry:
		return map[string]interface{}{
			"id":         id,
			"date":       v.Date.String(),
			"time":       fmt.Sprintf("%02d:%02d:%02d", v.Hour, v.Minute, v.Second),
			"level":      v.Level,
			"subscriber": v.SubscriberID,
			"message":    v.Message,
		}
	case *protocol.EPGEvent:
		return map[string]interface{}{
			"id":          id,
			"channel":     v.Channel,
			"date":        v.Date.String(),
			"start":       fmt.Sprintf("%02d:%02d", v.Hour, v.Minute),
			"duration":    v.Duration,
			"title":       v.Title,
			"description": v.Description,
		}
	default:
		return map[string]interface{}{"id": id}
	}
}
