// Package httputil holds the JSON response and request helpers shared by
// the registry handlers. Errors use the ErrorResponse envelope with a
// machine-readable code; 5xx causes are logged and never sent to clients.
package httputil
