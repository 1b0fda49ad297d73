// Package attempt drives a single taker through a timed exam attempt.
//
// The Controller owns all per-attempt state: the answer store, the review
// marks, the visited set and the countdown derived from the server-issued
// start time. Timer ticks and user actions are serialized through the
// controller, answer edits flow to durable storage through a SyncChannel
// that never has more than one save in flight, and submission (manual or on
// deadline) is single-flight.
//
// Collaborators (session bootstrap, answer persistence, submission) are
// small interfaces so the state machine can be exercised with fakes and a
// manual clock.
package attempt
