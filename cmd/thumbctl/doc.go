// Command thumbctl inspects and maintains the imgview thumbnail store.
//
// Usage:
//
//	thumbctl <command> [arguments]
//
// Commands:
//
//	status                Print the store location, row count and size.
//
//	hash <file>...        Print the key each file's thumbnail is looked up
//	                      under, and whether a thumbnail is stored for it.
//
//	get <hash> <out.jpg>  Write the stored JPEG for a key to a file.
//
//	delete <hash>         Remove one stored thumbnail.
//
//	vacuum                Rebuild the database file to reclaim space.
//
//	warm <path>...        Generate thumbnails for the given files and
//	                      directories without opening the viewer, so a
//	                      later session finds them in the store.
//
// Environment:
//
//	IMGVIEW_DATA_DIR   Directory holding thumbs.db
//	IMGVIEW_WORKERS    Number of warm workers
//	IMGVIEW_RECURSIVE  Descend into subdirectories when warming
package main
