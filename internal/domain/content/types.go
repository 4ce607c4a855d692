// Package content defines the content domain: the closed set of content
// types, cache keys, cached entries, and the freshness policy that decides
// whether a cached artifact may still be served.
package content

import (
	"fmt"
	"time"
)

// Type identifies a kind of generated content.
// The set is closed; anything else is rejected before cache or quota work.
type Type string

const (
	// TypeDeepDive is a one-shot essay on a single topic. Generated once
	// per (user, topic) and kept until explicitly invalidated.
	TypeDeepDive Type = "deep_dive"

	// TypeDailyForecast rolls over at the user's local midnight.
	TypeDailyForecast Type = "daily_forecast"

	// TypeWeeklyForecast rolls over at the start of the user's ISO week.
	TypeWeeklyForecast Type = "weekly_forecast"

	// TypeMonthlyForecast rolls over at the start of the user's month.
	TypeMonthlyForecast Type = "monthly_forecast"

	// TypeSynastryReport compares the user's chart against a partner's.
	// Keyed by partner fingerprint and report mode, never by period.
	TypeSynastryReport Type = "synastry_report"
)

// SynastryMode selects the depth of a synastry report.
type SynastryMode string

const (
	SynastryBrief SynastryMode = "brief"
	SynastryFull  SynastryMode = "full"
)

// Valid reports whether t is a member of the closed content type set.
func (t Type) Valid() bool {
	switch t {
	case TypeDeepDive, TypeDailyForecast, TypeWeeklyForecast,
		TypeMonthlyForecast, TypeSynastryReport:
		return true
	}
	return false
}

// RequiresPremium reports whether t is gated to premium subscribers by
// default. Access rules in config can override this (see domain/access).
// Only synastry reports are gated; deep dives are open to every tier and
// rely on the generation quota instead.
func (t Type) RequiresPremium() bool {
	return t == TypeSynastryReport
}

// PeriodBound reports whether t is regenerated per calendar period.
func (t Type) PeriodBound() bool {
	switch t {
	case TypeDailyForecast, TypeWeeklyForecast, TypeMonthlyForecast:
		return true
	}
	return false
}

// PeriodFor computes the period discriminator for t at instant now,
// evaluated in the user's timezone so a daily forecast rolls over at the
// user's midnight, not the server's. Non-period-bound types return "".
func (t Type) PeriodFor(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	switch t {
	case TypeDailyForecast:
		return local.Format("2006-01-02")
	case TypeWeeklyForecast:
		year, week := local.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case TypeMonthlyForecast:
		return local.Format("2006-01")
	}
	return ""
}

// CacheKey is the deterministic composite identity of one cached artifact.
// Topic is set for deep dives; PartnerFingerprint and Mode for synastry
// reports; Period for forecasts. Unused fields are empty.
type CacheKey struct {
	UserID             string
	Type               Type
	Topic              string
	PartnerFingerprint string
	Mode               SynastryMode
	Period             string
}

// Slot identifies the cache slot the key occupies: everything except the
// period. Successive periods of the same forecast share a slot, so the
// previous period's entry stays resident as a stale fallback until the
// next successful generation replaces it.
func (k CacheKey) Slot() string {
	return string(k.Type) + "|" + k.UserID + "|" + k.Topic + "|" +
		k.PartnerFingerprint + "|" + string(k.Mode)
}

// String returns the full key including the period discriminator.
// Used as the single-flight key so concurrent requests for the same
// artifact in the same period collapse to one generation.
func (k CacheKey) String() string {
	return k.Slot() + "|" + k.Period
}

// CacheEntry is an immutable cached artifact. Regeneration replaces the
// entry wholesale; it is never mutated in place.
type CacheEntry struct {
	Key         CacheKey
	Payload     string
	GeneratedAt time.Time
}

// Fresh reports whether the entry may be served for the requested key.
// For period-bound content this holds iff the entry was generated in the
// requested period; deep dives and synastry reports have empty periods on
// both sides and stay fresh until invalidated.
func (e *CacheEntry) Fresh(requested CacheKey) bool {
	return e.Key.Period == requested.Period
}
