// Package httputil holds the JSON response helpers shared by API handlers.
// Handlers never write raw bodies; errors always use ErrorResponse.
package httputil
