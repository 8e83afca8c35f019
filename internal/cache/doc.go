// Package cache is the process-wide normalized store of server-derived data.
//
// Entities are keyed by Ref (typename plus stable key fields) so every query
// path that returns the same logical record updates one shared copy. Writes
// arrive as Patch values and are applied under a single lock acquisition;
// readers never observe a half-applied patch.
//
// Optimistic predictions live in layers stacked over the base store in the
// order their mutations were initiated. Server responses write to the base,
// so a poll result cannot clobber a pending prediction, and removing a layer
// restores exactly the view that existed beneath it.
package cache
