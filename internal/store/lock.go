package store

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the database lock
var ErrLocked = errors.New("database is locked by another process")

type fileLock struct {
	fl *flock.Flock
}

func acquireLock(path string) (*fileLock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}
	return &fileLock{fl: fl}, nil
}

func (l *fileLock) release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
