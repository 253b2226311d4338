package utils

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	homedir "github.com/mitchellh/go-homedir"
)

// LockRetryDelay is how often a waiting run checks whether the store lock
// has been released.
var LockRetryDelay = 250 * time.Millisecond

// StoreLock keeps two promowatch runs from writing the same on-disk store.
// The lock lives in a sibling file named after the store.
type StoreLock struct {
	flock  *flock.Flock
	driver string
	store  string
}

// NewStoreLock returns an unlocked lock for the store of the given driver
// at storePath, which must already be resolved (see ResolveStorePath).
func NewStoreLock(driver, storePath string) *StoreLock {
	return &StoreLock{
		flock:  flock.New(storePath + ".lock"),
		driver: driver,
		store:  storePath,
	}
}

// Path is the lock file.
func (l *StoreLock) Path() string { return l.flock.Path() }

// Lock takes the lock. When another run holds it, Lock logs once and keeps
// retrying until the lock is free or ctx is done.
func (l *StoreLock) Lock(ctx context.Context) error {
	ok, err := l.flock.TryLock()
	if err != nil {
		return errors.Wrapf(err, "lock %s store %s", l.driver, l.store)
	}
	if ok {
		return nil
	}
	Log.Infof("The %s store %s is in use by another promowatch run, waiting for it to finish", l.driver, l.store)
	if _, err := l.flock.TryLockContext(ctx, LockRetryDelay); err != nil {
		return errors.Wrapf(err, "wait for %s store %s", l.driver, l.store)
	}
	return nil
}

// Unlock releases the lock. Unlocking a lock that is not held is a no-op.
func (l *StoreLock) Unlock() error {
	if !l.flock.Locked() {
		return nil
	}
	return errors.Wrapf(l.flock.Unlock(), "unlock %s store %s", l.driver, l.store)
}

// ResolveStorePath turns the configured store path into an absolute one.
// An empty path means promowatch.sqlite under ~/.config/promowatch, and a
// leading ~ is expanded.
func ResolveStorePath(storePath string) (string, error) {
	if storePath == "" {
		storePath = filepath.Join("~", ".config", "promowatch", "promowatch.sqlite")
	}
	expanded, err := homedir.Expand(storePath)
	if err != nil {
		return "", errors.Wrapf(err, "expand store path %s", storePath)
	}
	return filepath.Abs(expanded)
}
