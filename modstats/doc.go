// Package modstats is the read side of the detection accuracy engine: it
// infers ground-truth labels for past spam/ham verdicts from later manual
// corrections, attributes accuracy to the individual checks that voted on
// each message, detects high-trust veto events, and measures how fast
// moderators respond to spam verdicts.
//
// Everything here is a pure, deterministic computation over the append-only
// detection event and moderation action logs: re-running a report over the
// same window yields byte-identical output, so results can be cached and
// report jobs can run in parallel without coordination.
package modstats
