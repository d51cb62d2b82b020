// Package event defines the task domain-event envelope and the publisher
// that hands envelopes to the message broker.
//
// Envelopes follow the CloudEvents shape the rest of the platform speaks:
// one uniquely identified, self-contained event per task mutation. Publish
// calls are fire-and-forget: broker failures are logged and swallowed so a
// task mutation never fails on notification problems.
package event
