/*
Package media stores entry thumbnails.

Capturing a frame is left to the client; the server receives an image
(JPEG, PNG, GIF or WebP), fits it inside a 480x270 box with imaging,
encodes it as JPEG and files it under the BLAKE2b-256 digest of the
encoded bytes. Entries keep only that opaque reference. Identical uploads
land on the same file, and Prune removes files no entry refers to.

Decoding is bounded: uploads over MaxUploadBytes or MaxImagePixels are
rejected before the full image is decoded, and very large images are
downscaled first.
*/
package media
