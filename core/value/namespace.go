package value

import (
	"fmt"
	"strings"
)

// Namespace URIs the element lookups accept. Documents may bind them to any prefix.
var (
	PodcastNamespaces = []string{
		"https://podcastindex.org/namespace/1.0",
		"http://podcastindex.org/namespace/1.0",
		"https://github.com/Podcastindex-org/podcast-namespace/blob/main/docs/1.0.md",
	}
	ItunesNamespaces = []string{
		"http://www.itunes.com/dtds/podcast-1.0.dtd",
		"http://www.itunes.com/DTDs/Podcast-1.0.dtd",
		"https://www.itunes.com/dtds/podcast-1.0.dtd",
	}
)

// PodcastElem returns an XPath step selecting the podcast namespace element
// local, whatever prefix the document uses for it.
func PodcastElem(local string) string {
	return nsElem(local, PodcastNamespaces)
}

// ItunesElem is PodcastElem for the iTunes namespace.
func ItunesElem(local string) string {
	return nsElem(local, ItunesNamespaces)
}

func nsElem(local string, uris []string) string {
	conds := make([]string, len(uris))
	for i, u := range uris {
		conds[i] = fmt.Sprintf("namespace-uri()='%s'", u)
	}
	return fmt.Sprintf("*[local-name()='%s' and (%s)]", local, strings.Join(conds, " or "))
}

var (
	channelValueExpr   = "//channel/" + PodcastElem("value")
	valueExpr          = PodcastElem("value")
	valueRecipientExpr = PodcastElem("valueRecipient")
)
