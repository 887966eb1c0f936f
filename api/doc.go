// Package api exposes the catalog over HTTP with a chi router. Every
// request works in its own unit of work.
package api
