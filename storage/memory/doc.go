// Package memory provides the default in-process implementation of
// storage.Store.
//
// All records live in maps guarded by a single mutex. Consume operations
// look up and delete under the same write lock, so a code or state is handed
// to at most one caller. Expired records are never swept in the background;
// the lookup that finds them expired removes them.
//
// Nothing survives a restart. Use storage/valkey when records must outlive
// the process.
package memory
