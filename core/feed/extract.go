package feed

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"v4vfm/core/value"
)

// ItemEnclosure is one <item> reduced to what a resolved track needs.
type ItemEnclosure struct {
	GUID            string
	URL             string
	Title           string
	Artist          string
	Image           string
	DurationSeconds int
	FeedTitle       string
	FeedGUID        string
}

// channelInfo 频道级别的元数据，条目缺失时回退使用
type channelInfo struct {
	title  string
	author string
	image  string
	guid   string
}

var (
	itemChunk = regexp.MustCompile(`(?s)<item[\s>].*?</item>`)
	itemOpen  = regexp.MustCompile(`<item[\s>]`)
	rootOpen  = regexp.MustCompile(`<rss(?:\s[^>]*)?>`)
	nsDecl    = regexp.MustCompile(`xmlns:([A-Za-z_][\w.\-]*)\s*=\s*"([^"]*)"`)
)

var (
	podcastGUIDExpr    = value.PodcastElem("guid")
	podcastValueExpr   = value.PodcastElem("value")
	remoteItemExpr     = "//" + value.PodcastElem("remoteItem")
	itunesAuthorExpr   = value.ItunesElem("author")
	itunesImageExpr    = value.ItunesElem("image")
	itunesDurationExpr = value.ItunesElem("duration")
)

// defaultNamespaces are declared around salvaged fragments so prefixed tags
// still parse. Declarations found on the document's own <rss> tag win.
var defaultNamespaces = [][2]string{
	{"itunes", "http://www.itunes.com/dtds/podcast-1.0.dtd"},
	{"podcast", "https://podcastindex.org/namespace/1.0"},
	{"content", "http://purl.org/rss/1.0/modules/content/"},
	{"media", "http://search.yahoo.com/mrss/"},
	{"dc", "http://purl.org/dc/elements/1.1/"},
	{"atom", "http://www.w3.org/2005/Atom"},
	{"googleplay", "http://www.google.com/schemas/play-podcasts/1.0"},
}

const fragmentClose = `</channel></rss>`

// fragmentOpen builds the wrapper opening tags for salvaged items.
func fragmentOpen(data []byte) string {
	decls := make(map[string]string, len(defaultNamespaces))
	order := make([]string, 0, len(defaultNamespaces))
	for _, d := range defaultNamespaces {
		decls[d[0]] = d[1]
		order = append(order, d[0])
	}
	if root := rootOpen.Find(data); root != nil {
		for _, m := range nsDecl.FindAllSubmatch(root, -1) {
			prefix := string(m[1])
			if _, ok := decls[prefix]; !ok {
				order = append(order, prefix)
			}
			decls[prefix] = string(m[2])
		}
	}

	var b strings.Builder
	b.WriteString("<rss")
	for _, prefix := range order {
		b.WriteString(` xmlns:` + prefix + `="` + decls[prefix] + `"`)
	}
	b.WriteString("><channel>")
	return b.String()
}

// ExtractGuidAndEnclosure lists the items of a feed that have a guid and an
// enclosure URL, in document order. A document that does not parse as a whole
// is scanned item by item and unparseable items are skipped.
func ExtractGuidAndEnclosure(data []byte) []ItemEnclosure {
	if doc, err := xmlquery.Parse(bytes.NewReader(data)); err == nil {
		if ch := xmlquery.FindOne(doc, "//channel"); ch != nil {
			return itemsOf(ch, readChannel(ch))
		}
		return nil
	}
	return salvage(data)
}

// FindItem returns the enclosure of the item whose guid equals guid.
func FindItem(data []byte, guid string) (ItemEnclosure, bool) {
	guid = strings.TrimSpace(guid)
	for _, it := range ExtractGuidAndEnclosure(data) {
		if it.GUID == guid {
			return it, true
		}
	}
	return ItemEnclosure{}, false
}

func salvage(data []byte) []ItemEnclosure {
	var ch channelInfo
	if loc := itemOpen.FindIndex(data); loc != nil {
		header := append([]byte(nil), data[:loc[0]]...)
		if doc, err := xmlquery.Parse(bytes.NewReader(append(header, []byte(fragmentClose)...))); err == nil {
			if n := xmlquery.FindOne(doc, "//channel"); n != nil {
				ch = readChannel(n)
			}
		}
	}

	wrapper := fragmentOpen(data)
	var out []ItemEnclosure
	for _, chunk := range itemChunk.FindAll(data, -1) {
		doc, err := xmlquery.Parse(strings.NewReader(wrapper + string(chunk) + fragmentClose))
		if err != nil {
			continue
		}
		if n := xmlquery.FindOne(doc, "//item"); n != nil {
			if it, ok := readItem(n, ch); ok {
				out = append(out, it)
			}
		}
	}
	return out
}

func itemsOf(channel *xmlquery.Node, ch channelInfo) []ItemEnclosure {
	var out []ItemEnclosure
	for _, n := range xmlquery.Find(channel, "item") {
		if it, ok := readItem(n, ch); ok {
			out = append(out, it)
		}
	}
	return out
}

func readChannel(n *xmlquery.Node) channelInfo {
	ch := channelInfo{
		title:  text(n, "title"),
		author: text(n, itunesAuthorExpr),
		guid:   text(n, podcastGUIDExpr),
	}
	if img := xmlquery.FindOne(n, itunesImageExpr); img != nil {
		ch.image = strings.TrimSpace(img.SelectAttr("href"))
	}
	if ch.image == "" {
		ch.image = text(n, "image/url")
	}
	return ch
}

func readItem(n *xmlquery.Node, ch channelInfo) (ItemEnclosure, bool) {
	it := ItemEnclosure{
		GUID:      text(n, "guid"),
		Title:     text(n, "title"),
		Artist:    text(n, itunesAuthorExpr),
		FeedTitle: ch.title,
		FeedGUID:  ch.guid,
	}
	if enc := xmlquery.FindOne(n, "enclosure"); enc != nil {
		it.URL = strings.TrimSpace(enc.SelectAttr("url"))
	}
	if it.GUID == "" || it.URL == "" {
		return ItemEnclosure{}, false
	}
	if img := xmlquery.FindOne(n, itunesImageExpr); img != nil {
		it.Image = strings.TrimSpace(img.SelectAttr("href"))
	}
	if it.Image == "" {
		it.Image = ch.image
	}
	if it.Artist == "" {
		it.Artist = ch.author
	}
	it.DurationSeconds = ParseDuration(text(n, itunesDurationExpr))
	return it, true
}

func text(n *xmlquery.Node, expr string) string {
	if c := xmlquery.FindOne(n, expr); c != nil {
		return strings.TrimSpace(c.InnerText())
	}
	return ""
}

// ParseDuration reads itunes:duration values: seconds, MM:SS or HH:MM:SS.
// Anything else is 0.
func ParseDuration(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	total := 0
	for _, part := range strings.Split(s, ":") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v < 0 {
			return 0
		}
		total = total*60 + int(v)
	}
	return total
}
