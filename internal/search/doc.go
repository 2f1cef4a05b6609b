// Package search keeps an in-memory full-text index over cached tracks.
//
// Queries use bleve's query string syntax ("artist:davis blue") or a short
// prefix form: comma separated terms where @ scopes to artist, # to album,
// $ to title and ! to genre. Unscoped terms match any of artist, album and
// title.
package search
