package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/dhowland/epubfts/internal/chunker"
	"github.com/dhowland/epubfts/internal/logger"
	"github.com/dhowland/epubfts/pkg/types"
)

const (
	containerPath = "META-INF/container.xml"

	// maxTitleRunes bounds the stored section title.
	maxTitleRunes = 200
)

// Result carries the outcome of one extraction. Extraction never fails
// hard: when nothing could be extracted, Sections is empty and Reason
// says why.
type Result struct {
	Sections []types.Section
	Reason   string
}

// Extractor pulls searchable text out of EPUB archives. It is stateless
// apart from its logger and safe for concurrent use.
type Extractor struct {
	log       logger.Logger
	chunkSize int
}

// New creates an Extractor producing chunks of the default size.
func New(log logger.Logger) *Extractor {
	return &Extractor{log: log, chunkSize: chunker.DefaultChunkSize}
}

// container mirrors the OCF META-INF/container.xml document.
type container struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

// packageDoc mirrors the parts of the OPF package document we read.
type packageDoc struct {
	Manifest struct {
		Items []manifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Itemrefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type manifestItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

// Extract opens the archive at epubPath and returns its sections in spine
// order. Any container-level failure yields an empty Result with the
// reason recorded; individual unreadable or unparseable content documents
// are skipped without affecting the rest.
func (e *Extractor) Extract(epubPath string) Result {
	rc, err := zip.OpenReader(epubPath)
	if err != nil {
		return e.fail(epubPath, fmt.Sprintf("open archive: %v", err))
	}
	defer func() { _ = rc.Close() }()

	entries := make(map[string]*zip.File, len(rc.File))
	for _, f := range rc.File {
		entries[f.Name] = f
	}

	raw, err := readEntry(entries, containerPath)
	if err != nil {
		return e.fail(epubPath, fmt.Sprintf("read container: %v", err))
	}
	var c container
	if err := xml.Unmarshal(raw, &c); err != nil {
		return e.fail(epubPath, fmt.Sprintf("parse container: %v", err))
	}
	if len(c.Rootfiles) == 0 || c.Rootfiles[0].FullPath == "" {
		return e.fail(epubPath, "container declares no rootfile")
	}

	opfPath := c.Rootfiles[0].FullPath
	raw, err = readEntry(entries, opfPath)
	if err != nil {
		return e.fail(epubPath, fmt.Sprintf("read package document: %v", err))
	}
	var pkg packageDoc
	if err := xml.Unmarshal(raw, &pkg); err != nil {
		return e.fail(epubPath, fmt.Sprintf("parse package document: %v", err))
	}

	opfDir := path.Dir(opfPath)
	manifest := make(map[string]manifestItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		if item.ID != "" {
			manifest[item.ID] = item
		}
	}

	var sections []types.Section
	for _, ref := range pkg.Spine.Itemrefs {
		item, ok := manifest[ref.IDRef]
		if !ok || item.Href == "" {
			continue
		}
		if !isHTMLContent(item.Href, item.MediaType) {
			continue
		}

		contentPath := path.Clean(path.Join(opfDir, item.Href))
		body, err := readEntry(entries, contentPath)
		if err != nil {
			continue
		}

		doc, err := html.Parse(bytes.NewReader(body))
		if err != nil {
			// x/net/html recovers from malformed markup; only a read
			// error mid-stream gets here. Skip just this document.
			continue
		}

		title := sectionTitle(doc)
		if title == "" {
			title = path.Base(contentPath)
		}
		title = truncateRunes(title, maxTitleRunes)

		text := visibleText(doc)
		for _, chunk := range chunker.Split(text, e.chunkSize) {
			sections = append(sections, types.Section{Title: title, Content: chunk})
		}
	}

	return Result{Sections: sections}
}

func (e *Extractor) fail(epubPath, reason string) Result {
	e.log.Debug("epub extraction skipped", "path", epubPath, "reason", reason)
	return Result{Reason: reason}
}

// readEntry reads one archive member, retrying with a URL-unescaped name
// since OPF hrefs are often percent-encoded.
func readEntry(entries map[string]*zip.File, name string) ([]byte, error) {
	f, ok := entries[name]
	if !ok {
		if unescaped, err := url.PathUnescape(name); err == nil {
			f, ok = entries[unescaped]
		}
		if !ok {
			return nil, fmt.Errorf("no such entry: %s", name)
		}
	}
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// isHTMLContent reports whether a spine item holds (X)HTML text worth
// indexing, judged by media type first and extension second.
func isHTMLContent(href, mediaType string) bool {
	if strings.Contains(strings.ToLower(mediaType), "html") {
		return true
	}
	lower := strings.ToLower(href)
	return strings.HasSuffix(lower, ".xhtml") ||
		strings.HasSuffix(lower, ".html") ||
		strings.HasSuffix(lower, ".htm")
}

// sectionTitle derives a display title from the document, trying <title>,
// then <h1>, then <h2>. Empty when none yields text.
func sectionTitle(doc *html.Node) string {
	for _, tag := range []string{"title", "h1", "h2"} {
		if n := findElement(doc, tag); n != nil {
			if title := chunker.Normalize(nodeText(n)); title != "" {
				return title
			}
		}
	}
	return ""
}

// findElement returns the first element with the given tag in document
// order, or nil.
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// nodeText concatenates the text nodes beneath n, excluding script and
// style subtrees.
func nodeText(n *html.Node) string {
	var parts []string
	collectText(n, &parts)
	return strings.Join(parts, " ")
}

// visibleText returns the whole document's visible text, trimmed per text
// node and joined with single spaces.
func visibleText(doc *html.Node) string {
	var parts []string
	collectText(doc, &parts)
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
