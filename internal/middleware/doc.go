// Package middleware provides HTTP middleware for the status server.
//
// It includes:
//   - Request logging with control characters stripped from
//     client-supplied fields
//   - Prometheus request counts and latencies, labelled by mux route
//     template rather than raw path
package middleware
