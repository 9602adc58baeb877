package explorer

import (
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/nao1215/scopecrawl/internal/model"
)

// defaultClickElements are the elements acted on when ClickDefault is set.
var defaultClickElements = []string{"a", "button", "input"}

// actionExtractor turns a document into the URLs its clickable elements lead to.
type actionExtractor struct {
	clickable    map[string]bool
	excluded     []model.ExcludedElement
	randomInputs bool
	rng          *rand.Rand
}

func newActionExtractor(limits Limits, rng *rand.Rand) *actionExtractor {
	names := limits.Elements
	if limits.ClickDefault {
		names = defaultClickElements
	}
	clickable := make(map[string]bool, len(names))
	for _, n := range names {
		clickable[strings.ToLower(strings.TrimSpace(n))] = true
	}

	var excluded []model.ExcludedElement
	for _, e := range limits.ExcludedElements {
		if e.Enabled {
			excluded = append(excluded, e)
		}
	}
	return &actionExtractor{
		clickable:    clickable,
		excluded:     excluded,
		randomInputs: limits.RandomInputs,
		rng:          rng,
	}
}

// extract returns the absolute URLs reachable from the document, in
// document order and without duplicates.
func (x *actionExtractor) extract(pageURL, document string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	root, err := htmlquery.Parse(strings.NewReader(document))
	if err != nil {
		return nil, err
	}
	doc := goquery.NewDocumentFromNode(root)

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	skip := x.excludedNodes(root, doc)
	seen := make(map[string]bool)
	var out []string
	add := func(raw string) {
		resolved := resolveURL(base, raw)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		out = append(out, resolved)
	}

	doc.Find("a[href], area[href], iframe[src], frame[src], form").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if skip[node] {
			return
		}
		switch node.Data {
		case "a", "area":
			if x.clickable[node.Data] || (node.Data == "area" && x.clickable["a"]) {
				add(s.AttrOr("href", ""))
			}
		case "iframe", "frame":
			add(s.AttrOr("src", ""))
		case "form":
			if x.submits(s, skip) {
				if target := x.formURL(s); target != "" {
					add(target)
				}
			}
		}
	})
	return out, nil
}

// submits reports whether the form is acted on: either forms are clickable
// themselves or it has a clickable, non-excluded submit control.
func (x *actionExtractor) submits(form *goquery.Selection, skip map[*html.Node]bool) bool {
	if x.clickable["form"] {
		return true
	}
	found := false
	form.Find("button, input[type=submit], input[type=image]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		n := s.Get(0)
		if !skip[n] && x.clickable[n.Data] {
			found = true
		}
		return !found
	})
	return found
}

// formURL builds the GET submission of form. POST forms cannot be replayed
// by navigation and yield "".
func (x *actionExtractor) formURL(form *goquery.Selection) string {
	if method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", "GET"))); method != "GET" {
		return ""
	}
	values := url.Values{}
	form.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		if name == "" {
			return
		}
		if _, disabled := s.Attr("disabled"); disabled {
			return
		}
		switch goquery.NodeName(s) {
		case "select":
			opt := s.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = s.Find("option").First()
			}
			values.Set(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
		case "textarea":
			values.Set(name, x.inputValue("text", s.Text()))
		default:
			typ := strings.ToLower(s.AttrOr("type", "text"))
			switch typ {
			case "submit", "button", "image", "reset", "file":
				return
			case "checkbox", "radio":
				if _, checked := s.Attr("checked"); checked {
					values.Add(name, s.AttrOr("value", "on"))
				}
			case "hidden":
				values.Set(name, s.AttrOr("value", ""))
			default:
				values.Set(name, x.inputValue(typ, s.AttrOr("value", "")))
			}
		}
	})

	action := form.AttrOr("action", "")
	u, err := url.Parse(strings.TrimSpace(action))
	if err != nil {
		return ""
	}
	u.RawQuery = values.Encode()
	return u.String()
}

// inputValue returns the value typed into a field: a random one when random
// inputs are enabled, otherwise the field's default.
func (x *actionExtractor) inputValue(typ, current string) string {
	if !x.randomInputs || x.rng == nil {
		return current
	}
	switch typ {
	case "email":
		return randomWord(x.rng, 8) + "@example.com"
	case "number", "range", "tel":
		return strconv.Itoa(x.rng.IntN(10000))
	case "url":
		return "http://example.com/" + randomWord(x.rng, 6)
	default:
		return randomWord(x.rng, 8)
	}
}

func randomWord(rng *rand.Rand, n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rng.IntN(len(letters))]
	}
	return string(b)
}

// excludedNodes returns the elements matched by an enabled exclusion rule.
func (x *actionExtractor) excludedNodes(root *html.Node, doc *goquery.Document) map[*html.Node]bool {
	skip := make(map[*html.Node]bool)
	for _, rule := range x.excluded {
		var xpathMatches map[*html.Node]bool
		if rule.XPath != "" {
			nodes, err := htmlquery.QueryAll(root, rule.XPath)
			if err != nil {
				continue
			}
			xpathMatches = make(map[*html.Node]bool, len(nodes))
			for _, n := range nodes {
				xpathMatches[n] = true
			}
		}

		doc.Find(strings.ToLower(rule.Element)).Each(func(_ int, s *goquery.Selection) {
			n := s.Get(0)
			if xpathMatches != nil && !xpathMatches[n] {
				return
			}
			if rule.Text != "" && strings.TrimSpace(s.Text()) != rule.Text {
				return
			}
			if rule.AttributeName != "" && s.AttrOr(rule.AttributeName, "") != rule.AttributeValue {
				return
			}
			skip[n] = true
		})
	}
	return skip
}

// resolveURL resolves href against base and drops links that cannot be
// navigated to (javascript:, mailto:, fragments of the same page, ...).
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

// normalizeURL is the visited-set key of a URL.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
