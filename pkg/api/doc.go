/*
Package api is the HTTP shell over the configuration store.

Requests route by (method, path) to handler functions that work entirely
in decoded values; the shell handles content negotiation against the apes
codec registry on both directions, maps handler panics to Internal Server
Error, and passes handler-chosen status codes through. Validation failures
answer 400 with the report list; malformed bodies answer 400 with a
single-error report.
*/
package api
