// Package catalog holds the category and assortment entities and the
// category manager built on the unit of work.
package catalog
