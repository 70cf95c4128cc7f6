package playlist

import (
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"atelier/internal/catalog"
	"atelier/internal/mediatypes"
)

// ContentType is served with exported playlists.
const ContentType = "application/vnd.ms-wpl"

const generator = "atelier"

// WPL is a Windows Media Player playlist document.
type WPL struct {
	XMLName xml.Name `xml:"smil"`
	Head    WPLHead  `xml:"head"`
	Body    WPLBody  `xml:"body"`
}

// WPLHead carries the title and generator metadata.
type WPLHead struct {
	Meta  []WPLMeta `xml:"meta"`
	Title string    `xml:"title"`
}

// WPLMeta is a name/content pair in the head.
type WPLMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

// WPLBody holds the single sequence of items.
type WPLBody struct {
	Seq WPLSeq `xml:"seq"`
}

// WPLSeq lists the playlist items in order.
type WPLSeq struct {
	Media []WPLMedia `xml:"media"`
}

// WPLMedia is one item; Src is a path or URL.
type WPLMedia struct {
	Src string `xml:"src,attr"`
}

// Build makes a playlist of the playable entries in order. Entries that are
// not audio or video are left out.
func Build(title string, entries []catalog.Entry) WPL {
	var media []WPLMedia
	for _, e := range entries {
		if e.SourceRef == "" || !mediatypes.IsPlayable(catalog.Extension(e.Filename)) {
			continue
		}
		media = append(media, WPLMedia{Src: e.SourceRef})
	}
	return WPL{
		Head: WPLHead{
			Meta: []WPLMeta{
				{Name: "Generator", Content: generator},
				{Name: "ItemCount", Content: strconv.Itoa(len(media))},
			},
			Title: title,
		},
		Body: WPLBody{Seq: WPLSeq{Media: media}},
	}
}

// Write encodes p with the WPL processing instruction.
func Write(w io.Writer, p WPL) error {
	if _, err := io.WriteString(w, "<?wpl version=\"1.0\"?>\n"); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "    ")
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("failed to encode playlist: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Parse decodes a WPL document. The "<?wpl?>" processing instruction is
// optional.
func Parse(r io.Reader) (WPL, error) {
	var p WPL
	if err := xml.NewDecoder(r).Decode(&p); err != nil {
		return WPL{}, fmt.Errorf("invalid playlist: %w", err)
	}
	return p, nil
}

// Match resolves each playlist item to a catalog entry. An item matches an
// entry with the same source ref first, then the entry whose relative path
// is the longest suffix of the item's path, then a unique filename. Items
// that match nothing are returned in unmatched.
func Match(p WPL, entries []catalog.Entry) (matched []catalog.Entry, unmatched []string) {
	byRef := make(map[string]catalog.Entry, len(entries))
	byName := make(map[string][]catalog.Entry)
	for _, e := range entries {
		if e.SourceRef != "" {
			byRef[normalizePath(e.SourceRef)] = e
		}
		byName[strings.ToLower(e.Filename)] = append(byName[strings.ToLower(e.Filename)], e)
	}

	seen := make(map[string]bool)
	for _, m := range p.Body.Seq.Media {
		src := normalizePath(m.Src)
		e, ok := byRef[src]
		if !ok {
			e, ok = bySuffix(src, byName[strings.ToLower(path.Base(src))])
		}
		if !ok {
			unmatched = append(unmatched, m.Src)
			continue
		}
		if !seen[e.ID] {
			seen[e.ID] = true
			matched = append(matched, e)
		}
	}
	return matched, unmatched
}

// bySuffix picks the candidate whose relative path matches the most trailing
// components of src. A tie is ambiguous and matches nothing.
func bySuffix(src string, candidates []catalog.Entry) (catalog.Entry, bool) {
	best, bestScore, tie := catalog.Entry{}, 0, false
	for _, c := range candidates {
		score := commonSuffix(src, c.RelativePath)
		if c.RelativePath == "" {
			score = 1
		}
		switch {
		case score > bestScore:
			best, bestScore, tie = c, score, false
		case score == bestScore:
			tie = true
		}
	}
	if bestScore == 0 || tie {
		return catalog.Entry{}, false
	}
	return best, true
}

func commonSuffix(a, b string) int {
	pa := strings.Split(strings.ToLower(a), "/")
	pb := strings.Split(strings.ToLower(b), "/")
	n := 0
	for n < len(pa) && n < len(pb) && pa[len(pa)-1-n] == pb[len(pb)-1-n] {
		n++
	}
	return n
}

// normalizePath turns Windows and UNC separators into slashes.
func normalizePath(p string) string {
	return strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
}
