// Package middleware provides HTTP middleware for the gallery API:
// W3C extended request logging, Prometheus request metrics labelled by
// route template, and gzip compression of JSON responses.
package middleware
