// Package supplier is the HTTP client of the third-party catalog API that
// the sync worker pulls categories and assortment from.
package supplier
