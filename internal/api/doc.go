// Package api implements the REST client for the social backend.
//
// It covers only the calls the sync engine initiates: post mutations
// (create, like, comment), conversation history and messaging, and the
// friend endpoints. Every request carries the bearer credential from
// the session token source. Idempotent GETs are retried with
// exponential backoff and jitter; mutations are attempted once and
// surface their error to the caller.
package api
