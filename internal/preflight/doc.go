// Package preflight provides readiness checks for the directories and hosted
// services gardenpipe depends on.
//
// The CLI "gardenpipe status" and "gardenpipe test-components" commands run
// these checks. Hosted API checks are skipped when no key is configured so a
// text-only setup still reports a clean bill of health for what it uses.
package preflight
