// Package sloghooks logs cache events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/vermaster"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery     uint64
	PrefetchDropEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr     atomic.Uint64
	prefetchDropCtr atomic.Uint64
}

var _ vermaster.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FaultCached(uid string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("vermaster.fault_cached",
		"uid", uid,
		"err", err)
}

func (h *Hooks) AmbiguousMatch(oid string, matches int) {
	if h.l == nil {
		return
	}
	h.l.Error("vermaster.ambiguous_match",
		"oid", oid,
		"matches", matches)
}

func (h *Hooks) SharedSelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("vermaster.shared_self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) SharedSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("vermaster.shared_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) GenSnapshotError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("vermaster.gen_snapshot_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) GenBumpError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("vermaster.gen_bump_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) InvalidateOutage(key string, bumpErr, delErr error) {
	if h.l == nil {
		return
	}
	h.l.Error("vermaster.invalidate_outage",
		"key", h.redact(key),
		"bump_err", bumpErr,
		"del_err", delErr)
}

func (h *Hooks) SearchCleared(entries int, scope string) {
	if h.l == nil {
		return
	}
	h.l.Debug("vermaster.search_cleared",
		"entries", entries,
		"scope", scope)
}

func (h *Hooks) PrefetchDropped(searchKey string) {
	if h.l == nil || !sample(h.opts.PrefetchDropEvery, &h.prefetchDropCtr) {
		return
	}
	h.l.Info("vermaster.prefetch_dropped",
		"key", h.redact(searchKey))
}
