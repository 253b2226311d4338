package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/sw33tLie/promowatch/internal/utils"
	"github.com/sw33tLie/promowatch/pkg/extract"
	"github.com/sw33tLie/promowatch/pkg/notify"
	"github.com/sw33tLie/promowatch/pkg/storage"
	"github.com/sw33tLie/promowatch/pkg/whttp"
)

// openedStore is a Store plus whatever must be released with it.
type openedStore struct {
	*storage.Store
	kv   storage.KV
	lock *utils.StoreLock
}

func (s *openedStore) Close() {
	if err := s.kv.Close(); err != nil {
		utils.Log.Warnf("Could not close store: %v", err)
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			utils.Log.Warnf("%v", err)
		}
	}
}

// openStore opens the configured KV engine. With exclusive set, a SQLite
// store is locked for the lifetime of the command.
func openStore(ctx context.Context, exclusive bool) (*openedStore, error) {
	keep := viper.GetInt("history.keep")
	driver := strings.ToLower(viper.GetString("store.driver"))

	switch driver {
	case "memory":
		kv := storage.NewMemory()
		return &openedStore{Store: storage.NewStore(kv, keep), kv: kv}, nil
	case "redis":
		kv, err := storage.NewRedis(ctx, storage.RedisOptions{
			Addr:     viper.GetString("store.redis.addr"),
			Password: viper.GetString("store.redis.password"),
			DB:       viper.GetInt("store.redis.db"),
			Prefix:   viper.GetString("store.prefix"),
		})
		if err != nil {
			return nil, err
		}
		return &openedStore{Store: storage.NewStore(kv, keep), kv: kv}, nil
	case "", "sqlite":
		path, err := utils.ResolveStorePath(viper.GetString("store.path"))
		if err != nil {
			return nil, err
		}
		var lock *utils.StoreLock
		if exclusive {
			lock = utils.NewStoreLock("sqlite", path)
			if err := lock.Lock(ctx); err != nil {
				return nil, err
			}
			utils.Log.Debugf("Holding store lock %s", lock.Path())
		}
		db, err := storage.Open(path)
		if err != nil {
			if lock != nil {
				lock.Unlock()
			}
			return nil, err
		}
		return &openedStore{Store: storage.NewStore(db, keep), kv: db, lock: lock}, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", driver)
	}
}

func newFetcher() (*whttp.Fetcher, error) {
	return whttp.NewFetcher(whttp.Options{
		Timeout:   viper.GetDuration("fetch.timeout"),
		Retries:   viper.GetInt("fetch.retries"),
		UserAgent: viper.GetString("fetch.useragent"),
		MaxBytes:  viper.GetInt64("fetch.maxbytes"),
		Proxy:     viper.GetString("fetch.proxy"),
	})
}

func newExtractor() (extract.Extractor, error) {
	return extract.New(viper.GetString("extractor"))
}

// newNotifier returns the configured channels, or nil when there is none.
func newNotifier(console bool) notify.Notifier {
	var ns notify.Multi
	if hook := viper.GetString("notify.webhook"); hook != "" {
		ns = append(ns, notify.NewWebhook(hook, viper.GetDuration("notify.timeout")))
	}
	if console {
		ns = append(ns, notify.NewPrinter())
	}
	switch len(ns) {
	case 0:
		return nil
	case 1:
		return ns[0]
	}
	return ns
}
