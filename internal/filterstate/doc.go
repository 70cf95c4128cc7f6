/*
Package filterstate encodes a library view as a short, stable query string.

Keys:

	q     free-text search
	tag   required tag, repeated
	m     mount id
	fav   favorites only
	p     page number, 1-based
	sort  newest or oldest
	ps    page size from the configured allow-list
	len   duration bucket: any, 0-5, 5-10, 10-30, 30-60, 60+ (minutes)

Fields equal to their default are omitted and tags are written sorted and
deduplicated, so equal states always encode identically. Decoding never
fails; bad values fall back to defaults. For any state s,
Decode(Encode(s)) equals Normalize(s).
*/
package filterstate
