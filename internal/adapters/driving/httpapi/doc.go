// Package httpapi exposes folio's driving ports over HTTP using gin.
//
// Routes are mounted under an optional base path (for example "/api") and
// every failure is returned as {"error": {"kind": ..., "message": ...}},
// where kind is one of the stable values from domain.KindOf.
package httpapi
