package vermaster

import (
	"context"
	"errors"
	"time"

	c "github.com/unkn0wn-root/vermaster/codec"
	gen "github.com/unkn0wn-root/vermaster/genstore"
	"github.com/unkn0wn-root/vermaster/internal/util"
	"github.com/unkn0wn-root/vermaster/internal/wire"
	"github.com/unkn0wn-root/vermaster/master"
	pr "github.com/unkn0wn-root/vermaster/provider"
)

// sharedTier stores encoded documents in a provider, each stamped with its
// object's generation at write time. Any eviction bumps the generation, so
// entries written before it are rejected and deleted on read.
type sharedTier[T any] struct {
	ns       string
	provider pr.Provider
	codec    c.Codec[T]
	gens     gen.GenStore
	ttl      time.Duration
	log      Logger
	hooks    Hooks
}

func (s *sharedTier[T]) genKey(oid master.ObjectID) string { return util.GenKey(s.ns, oid.String()) }
func (s *sharedTier[T]) docKey(uid master.UniqueID) string { return util.DocKey(s.ns, uid.String()) }

// snapshot returns the object's generation; ok=false means it is unknown and
// the fetched document must not be written back.
func (s *sharedTier[T]) snapshot(ctx context.Context, oid master.ObjectID) (uint64, bool) {
	k := s.genKey(oid)
	g, err := s.gens.Snapshot(ctx, k)
	if err != nil {
		s.hooks.GenSnapshotError(k, err)
		s.log.Warn("generation snapshot failed", Fields{"key": k, "err": err})
		return 0, false
	}
	return g, true
}

func (s *sharedTier[T]) get(ctx context.Context, uid master.UniqueID) (master.Document[T], bool) {
	var zero master.Document[T]
	k := s.docKey(uid)
	raw, ok, err := s.provider.Get(ctx, k)
	if err != nil {
		s.log.Warn("shared tier get failed", Fields{"key": k, "err": err})
		return zero, false
	}
	if !ok {
		return zero, false
	}
	env, err := wire.Decode(raw)
	if err != nil {
		s.selfHeal(ctx, k, "corrupt")
		return zero, false
	}
	if env.UniqueID != uid.String() {
		s.selfHeal(ctx, k, "uid_mismatch")
		return zero, false
	}
	cur, ok := s.snapshot(ctx, uid.ObjectID())
	if !ok {
		return zero, false
	}
	if env.Gen != cur {
		s.selfHeal(ctx, k, "gen_mismatch")
		return zero, false
	}
	v, err := s.codec.Decode(env.Payload)
	if err != nil {
		s.selfHeal(ctx, k, "value_decode")
		return zero, false
	}
	return master.Document[T]{UniqueID: uid, Bounds: env.Bounds, Value: v}, true
}

// set writes doc iff the object's generation still equals observed.
func (s *sharedTier[T]) set(ctx context.Context, doc master.Document[T], observed uint64) {
	if cur, ok := s.snapshot(ctx, doc.ObjectID()); !ok || cur != observed {
		s.log.Debug("shared set skipped (gen moved)", Fields{"uid": doc.UniqueID.String(), "obs": observed})
		return
	}
	k := s.docKey(doc.UniqueID)
	uid := doc.UniqueID.String()
	if len(uid) > wire.MaxUniqueIDLen {
		s.hooks.SharedSetRejected(k)
		s.log.Warn("shared set skipped (unique id too long for envelope)", Fields{"oid": doc.ObjectID().String(), "len": len(uid)})
		return
	}
	payload, err := s.codec.Encode(doc.Value)
	if err != nil {
		s.log.Warn("shared set encode failed", Fields{"uid": doc.UniqueID.String(), "err": err})
		return
	}
	b := wire.Encode(wire.Envelope{Gen: observed, UniqueID: uid, Bounds: doc.Bounds, Payload: payload})
	ok, err := s.provider.Set(ctx, k, b, int64(len(b)), s.ttl)
	if err != nil {
		s.log.Warn("shared set failed", Fields{"key": k, "err": err})
		return
	}
	if !ok {
		s.hooks.SharedSetRejected(k)
		s.log.Debug("shared set rejected by provider (pressure)", Fields{"key": k})
	}
}

// invalidate bumps the object's generation and deletes the known keys.
// Either one alone keeps stale entries from being served, so only a failure
// of both is returned.
func (s *sharedTier[T]) invalidate(ctx context.Context, oid master.ObjectID, uids []master.UniqueID) error {
	gk := s.genKey(oid)
	_, bumpErr := s.gens.Bump(ctx, gk)
	if bumpErr != nil {
		s.hooks.GenBumpError(gk, bumpErr)
	}
	var delErr error
	for _, uid := range uids {
		if err := s.provider.Del(ctx, s.docKey(uid)); err != nil {
			delErr = errors.Join(delErr, err)
		}
	}
	switch {
	case bumpErr != nil && delErr != nil:
		s.hooks.InvalidateOutage(gk, bumpErr, delErr)
		s.log.Error("invalidate failed: gen bump and delete failed", Fields{"key": gk, "bumpErr": bumpErr, "delErr": delErr})
		return &InvalidateError{Key: gk, BumpErr: bumpErr, DelErr: delErr}
	case bumpErr != nil:
		s.log.Warn("invalidate: gen bump failed (deleted known entries)", Fields{"key": gk, "err": bumpErr})
	case delErr != nil:
		s.log.Warn("invalidate: delete failed (gen bumped)", Fields{"key": gk, "err": delErr})
	}
	return nil
}

func (s *sharedTier[T]) selfHeal(ctx context.Context, k, reason string) {
	_ = s.provider.Del(ctx, k)
	s.hooks.SharedSelfHeal(k, reason)
	s.log.Debug("shared entry self-healed", Fields{"key": k, "reason": reason})
}

func (s *sharedTier[T]) close(ctx context.Context) error {
	return errors.Join(s.gens.Close(ctx), s.provider.Close(ctx))
}
