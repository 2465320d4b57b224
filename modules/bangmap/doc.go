// Package bangmap answers "which groups are registered in this province"
// lookups.
//
// A lookup resolves free-form province input through a static alias table,
// reads the group directory through a TTL cache backed by one HTTP endpoint,
// and renders a plain-text reply capped at 2000 runes.
package bangmap
