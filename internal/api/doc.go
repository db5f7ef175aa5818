// Package api contains the backend HTTP handlers: task submission and
// introspection, transcription records, and the provider webhook that
// completes asynchronous transcription jobs.
package api
