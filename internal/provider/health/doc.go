// Package health tracks per-provider fitness for the generation
// pipeline: a normalized [0,1] health score, failure streaks, quarantine
// and throttling. The failover selector consults these records when
// picking a substitute for a failing provider.
package health
