package store

import (
	"context"
	"os"
	"time"

	"github.com/cuemby/objstore/pkg/health"
	"github.com/cuemby/objstore/pkg/kv"
)

// fsidChecker probes that the store's fsid file is still a regular
// file we can stat, a cheap proxy for "the mount point hasn't been torn
// out from under us". It does not re-test the flock itself.
type fsidChecker struct{ s *Store }

func (c fsidChecker) Type() health.CheckType { return health.CheckTypeFsidLock }

func (c fsidChecker) Check(ctx context.Context) health.Result {
	start := time.Now()
	fi, err := os.Stat(c.s.path.Root() + "/fsid")
	if err != nil {
		return health.Result{Healthy: false, Message: err.Error(), CheckedAt: start, Duration: time.Since(start)}
	}
	if !fi.Mode().IsRegular() {
		return health.Result{Healthy: false, Message: "fsid is not a regular file", CheckedAt: start, Duration: time.Since(start)}
	}
	return health.Result{Healthy: true, Message: "fsid file present", CheckedAt: start, Duration: time.Since(start)}
}

// kvChecker probes the kv engine with a trivial read.
type kvChecker struct{ s *Store }

func (c kvChecker) Type() health.CheckType { return health.CheckTypeKV }

func (c kvChecker) Check(ctx context.Context) health.Result {
	start := time.Now()
	if _, err := c.s.kv.Get(kv.PrefixColl, superblockKey); err != nil {
		return health.Result{Healthy: false, Message: err.Error(), CheckedAt: start, Duration: time.Since(start)}
	}
	return health.Result{Healthy: true, Message: "kv reachable", CheckedAt: start, Duration: time.Since(start)}
}

// fragRootChecker probes that the fragments root is still a directory.
type fragRootChecker struct{ s *Store }

func (c fragRootChecker) Type() health.CheckType { return health.CheckTypeFragRoot }

func (c fragRootChecker) Check(ctx context.Context) health.Result {
	start := time.Now()
	fi, err := os.Stat(c.s.path.Root() + "/fragments")
	if err != nil {
		return health.Result{Healthy: false, Message: err.Error(), CheckedAt: start, Duration: time.Since(start)}
	}
	if !fi.IsDir() {
		return health.Result{Healthy: false, Message: "fragments root is not a directory", CheckedAt: start, Duration: time.Since(start)}
	}
	return health.Result{Healthy: true, Message: "fragments root ok", CheckedAt: start, Duration: time.Since(start)}
}

// Checkers returns the store's three liveness checkers, ready to be
// driven by health.NewRunner.
func (s *Store) Checkers() []health.Checker {
	return []health.Checker{fsidChecker{s}, kvChecker{s}, fragRootChecker{s}}
}

// aggregateChecker folds several checkers into one, reporting unhealthy
// if any of them are, for a single health.Runner to drive a single
// /healthz endpoint.
type aggregateChecker struct {
	checkers []health.Checker
}

func (a aggregateChecker) Type() health.CheckType { return "aggregate" }

func (a aggregateChecker) Check(ctx context.Context) health.Result {
	start := time.Now()
	var messages []string
	for _, c := range a.checkers {
		r := c.Check(ctx)
		if !r.Healthy {
			messages = append(messages, string(c.Type())+": "+r.Message)
		}
	}
	if len(messages) > 0 {
		msg := messages[0]
		for _, m := range messages[1:] {
			msg += "; " + m
		}
		return health.Result{Healthy: false, Message: msg, CheckedAt: start, Duration: time.Since(start)}
	}
	return health.Result{Healthy: true, Message: "ok", CheckedAt: start, Duration: time.Since(start)}
}

// HealthChecker returns a single checker aggregating Checkers, suitable
// for health.NewRunner.
func (s *Store) HealthChecker() health.Checker {
	return aggregateChecker{checkers: s.Checkers()}
}
