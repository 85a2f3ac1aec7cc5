// Package preview derives link previews from the og: metadata of web pages.
package preview

import (
	"io"
	"net/url"
	"strings"

	"vox-chat/internal/domain"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parse reads an HTML document and returns its preview. The title comes from
// og:title, falling back to <title>. A page without a title has no preview
// and Parse returns nil.
func Parse(pageURL string, r io.Reader) (*domain.LinkPreview, error) {
	var (
		ogTitle, docTitle, description, image string
		inTitle                               bool
	)

	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return build(pageURL, ogTitle, docTitle, description, image), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Title:
				inTitle = tt == html.StartTagToken
			case atom.Meta:
				prop, content := metaProperty(tok)
				switch prop {
				case "og:title":
					if ogTitle == "" {
						ogTitle = content
					}
				case "og:description":
					if description == "" {
						description = content
					}
				case "og:image":
					if image == "" {
						image = content
					}
				}
			case atom.Body:
				// og: tags live in <head>.
				if docTitle != "" || ogTitle != "" {
					return build(pageURL, ogTitle, docTitle, description, image), nil
				}
			}
		case html.EndTagToken:
			if z.Token().DataAtom == atom.Title {
				inTitle = false
			}
		case html.TextToken:
			if inTitle && docTitle == "" {
				docTitle = strings.TrimSpace(string(z.Text()))
			}
		}
	}
}

func metaProperty(tok html.Token) (prop, content string) {
	for _, a := range tok.Attr {
		switch a.Key {
		case "property":
			prop = strings.ToLower(strings.TrimSpace(a.Val))
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}
	return prop, content
}

func build(pageURL, ogTitle, docTitle, description, image string) *domain.LinkPreview {
	title := ogTitle
	if title == "" {
		title = docTitle
	}
	if title == "" {
		return nil
	}
	return &domain.LinkPreview{
		URL:         pageURL,
		Title:       title,
		Description: description,
		Image:       resolve(pageURL, image),
	}
}

// resolve makes a relative og:image absolute against the page URL.
func resolve(pageURL, ref string) string {
	if ref == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}
