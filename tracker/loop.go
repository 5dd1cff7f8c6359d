package tracker

import (
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// nextSlot returns the next wall-clock boundary of the interval: for the
// 15-minute default that is minute 0, 15, 30 or 45 of the hour. Minute 45
// rolls over into the next hour.
func nextSlot(now time.Time, interval time.Duration) time.Time {
	minutes := int(interval.Minutes())
	if minutes <= 0 || minutes > 60 {
		minutes = 15
	}
	next := ((now.Minute() / minutes) + 1) * minutes
	if next >= 60 {
		top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
		return top.Add(time.Hour)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), next, 0, 0, now.Location())
}

func (s *Service) jitter() time.Duration {
	min := s.Config.JitterMinSeconds
	max := s.Config.JitterMaxSeconds
	if max <= min {
		return time.Duration(min) * time.Second
	}
	return time.Duration(min+rand.Intn(max-min+1)) * time.Second
}

// sleepUntilNextSlot blocks until the next aligned slot plus jitter, or
// until the context dies.
func (s *Service) sleepUntilNextSlot(ctx context.Context) error {
	now := s.clock().Now()
	wake := nextSlot(now, s.Config.Interval()).Add(s.jitter())
	wait := wake.Sub(now)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// acquireLock takes the single-instance lock. A lockfile whose mtime is
// older than the stale TTL is assumed to belong to a dead run and is broken.
func (s *Service) acquireLock() (*flock.Flock, bool) {
	lock := flock.New(s.Config.LockPath)
	locked, err := lock.TryLock()
	if err == nil && locked {
		now := time.Now()
		_ = os.Chtimes(s.Config.LockPath, now, now)
		return lock, true
	}

	info, statErr := os.Stat(s.Config.LockPath)
	if statErr == nil && time.Since(info.ModTime()) > s.Config.StaleLockAge() {
		s.Logger.WithField("lock", s.Config.LockPath).Warn("breaking stale lock")
		_ = os.Remove(s.Config.LockPath)
		lock = flock.New(s.Config.LockPath)
		if locked, err := lock.TryLock(); err == nil && locked {
			return lock, true
		}
	}
	return nil, false
}

func releaseLock(lock *flock.Flock) {
	if lock == nil {
		return
	}
	_ = lock.Unlock()
	_ = os.Remove(lock.Path())
}

// Loop runs one cycle immediately, then keeps firing on the aligned slots
// until the context is cancelled. Cycles never overlap: if the lock is still
// held when a slot fires, that slot is skipped.
func (s *Service) Loop(ctx context.Context) {
	for {
		if lock, ok := s.acquireLock(); ok {
			if err := s.RunOnce(ctx); err != nil {
				s.Logger.WithField("error", err.Error()).Error("cycle failed")
			}
			releaseLock(lock)
		} else {
			s.Logger.Info("another run appears to be active (lock present), skipping this cycle")
		}

		if err := s.sleepUntilNextSlot(ctx); err != nil {
			s.Logger.Info("tracker loop stopped")
			return
		}
	}
}
