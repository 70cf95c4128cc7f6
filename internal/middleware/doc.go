// Package middleware provides the HTTP middleware chain of the API server:
// W3C Extended Log Format access logging, Prometheus request metrics keyed
// by route template, and gzip compression of JSON and playlist responses.
package middleware
