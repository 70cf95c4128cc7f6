// Package bulk applies tag, favorite and title edits to many entries at
// once, in bounded chunks, and keeps the pre-image of the last operation so
// it can be undone with a single chunked write.
package bulk
