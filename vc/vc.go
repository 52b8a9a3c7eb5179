// Package vc models bitemporal coordinates: a version-as-of instant paired
// with a corrected-to instant, and the four-instant validity box stored
// documents carry.
//
// Unbounded ends are represented by the Min and Max sentinels. A coordinate
// axis set to "latest" holds Max until it is fixed to a concrete instant with
// WithLatestFixed; range checks are only meaningful on fixed coordinates.
package vc

import (
	"fmt"
	"time"
)

var (
	// Min is the smallest instant used for comparisons (unbounded past).
	Min = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	// Max is the largest instant used for comparisons (unbounded future, "latest").
	Max = time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC)
)

// VersionCorrection is an immutable bitemporal coordinate.
type VersionCorrection struct {
	versionAsOf time.Time
	correctedTo time.Time
}

// Latest is the coordinate "latest version, latest correction".
var Latest = VersionCorrection{versionAsOf: Max, correctedTo: Max}

// Of builds a coordinate. A zero instant on either axis means latest.
func Of(versionAsOf, correctedTo time.Time) VersionCorrection {
	return VersionCorrection{versionAsOf: orMax(versionAsOf), correctedTo: orMax(correctedTo)}
}

// OfVersionAsOf fixes the version axis and leaves corrections at latest.
func OfVersionAsOf(versionAsOf time.Time) VersionCorrection {
	return Of(versionAsOf, time.Time{})
}

// OfCorrectedTo fixes the correction axis and leaves versions at latest.
func OfCorrectedTo(correctedTo time.Time) VersionCorrection {
	return Of(time.Time{}, correctedTo)
}

func (v VersionCorrection) VersionAsOf() time.Time { return v.versionAsOf }
func (v VersionCorrection) CorrectedTo() time.Time { return v.correctedTo }

// VersionLatest reports whether the version axis still holds the latest sentinel.
func (v VersionCorrection) VersionLatest() bool { return v.versionAsOf.IsZero() || v.versionAsOf.Equal(Max) }

// CorrectionLatest reports whether the correction axis still holds the latest sentinel.
func (v VersionCorrection) CorrectionLatest() bool {
	return v.correctedTo.IsZero() || v.correctedTo.Equal(Max)
}

// ContainsLatest reports whether either axis is still "latest".
func (v VersionCorrection) ContainsLatest() bool { return v.VersionLatest() || v.CorrectionLatest() }

// WithLatestFixed returns a copy where each latest axis is replaced by now.
func (v VersionCorrection) WithLatestFixed(now time.Time) VersionCorrection {
	out := v
	if v.VersionLatest() {
		out.versionAsOf = now
	}
	if v.CorrectionLatest() {
		out.correctedTo = now
	}
	return out
}

// Equal compares both axes; the zero value equals Latest.
func (v VersionCorrection) Equal(o VersionCorrection) bool {
	return orMax(v.versionAsOf).Equal(orMax(o.versionAsOf)) &&
		orMax(v.correctedTo).Equal(orMax(o.correctedTo))
}

func (v VersionCorrection) String() string {
	return "V" + axis(v.versionAsOf) + ".C" + axis(v.correctedTo)
}

// MarshalText lets coordinates appear inside canonically encoded search requests.
func (v VersionCorrection) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func axis(t time.Time) string {
	if t.IsZero() || t.Equal(Max) {
		return "LATEST"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func orMax(t time.Time) time.Time {
	if t.IsZero() {
		return Max
	}
	return t
}

func orMin(t time.Time) time.Time {
	if t.IsZero() {
		return Min
	}
	return t
}

// Bounds is the validity box of a stored document: half-open on both axes.
// A zero From means unbounded past; a zero To means unbounded future.
type Bounds struct {
	VersionFrom    time.Time
	VersionTo      time.Time
	CorrectionFrom time.Time
	CorrectionTo   time.Time
}

// Contains reports whether the fixed coordinate v lies inside b:
// VersionFrom <= asOf < VersionTo and CorrectionFrom <= correctedTo < CorrectionTo.
func (b Bounds) Contains(v VersionCorrection) bool {
	asOf, corr := orMax(v.versionAsOf), orMax(v.correctedTo)
	return !asOf.Before(orMin(b.VersionFrom)) && asOf.Before(orMax(b.VersionTo)) &&
		!corr.Before(orMin(b.CorrectionFrom)) && corr.Before(orMax(b.CorrectionTo))
}

// OverlapsVersion reports whether [VersionFrom, VersionTo) intersects [from, to).
// Zero instants are unbounded.
func (b Bounds) OverlapsVersion(from, to time.Time) bool {
	return orMin(b.VersionFrom).Before(orMax(to)) && orMin(from).Before(orMax(b.VersionTo))
}

// ValidAt reports whether the version interval could still include t or any
// later instant, i.e. the interval is open-ended or ends after t.
func (b Bounds) ValidAt(t time.Time) bool {
	return orMax(b.VersionTo).After(t)
}

func (b Bounds) String() string {
	return fmt.Sprintf("v[%s,%s) c[%s,%s)",
		edge(b.VersionFrom), edge(b.VersionTo), edge(b.CorrectionFrom), edge(b.CorrectionTo))
}

func edge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
