// Package mediatypes maps file extensions to media kinds and MIME types.
//
// Extensions are written the way mounts store them: lowercase with no
// leading dot, although lookups accept either form.
//
//	mediatypes.KindOf("MKV")      // KindVideo
//	mediatypes.MimeType(".flac")  // "audio/flac"
//	mediatypes.DefaultMountExtensions()
//
// The package has no dependencies so any layer can import it.
package mediatypes
