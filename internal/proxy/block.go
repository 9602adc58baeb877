package proxy

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// blockMessageKey is the catalog key of the blocked-request body.
const blockMessageKey = "Request blocked by scopecrawl: the URL is out of the crawl scope."

// blockLanguages lists the supported locales. The first entry is the fallback.
var blockLanguages = []language.Tag{
	language.English,
	language.German,
	language.Spanish,
	language.French,
	language.Japanese,
}

var (
	blockCatalog = newBlockCatalog()
	blockMatcher = language.NewMatcher(blockLanguages)
)

func newBlockCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	messages := map[language.Tag]string{
		language.English:  blockMessageKey,
		language.German:   "Anfrage von scopecrawl blockiert: Die URL liegt außerhalb des Crawl-Bereichs.",
		language.Spanish:  "Solicitud bloqueada por scopecrawl: la URL está fuera del alcance del rastreo.",
		language.French:   "Requête bloquée par scopecrawl : l'URL est hors du périmètre de l'exploration.",
		language.Japanese: "scopecrawl によりリクエストがブロックされました: URL はクロール範囲外です。",
	}
	for tag, msg := range messages {
		if err := b.SetString(tag, blockMessageKey, msg); err != nil {
			panic(err) // constant catalog
		}
	}
	return b
}

// BlockMessage returns the blocked-request body for lang, falling back to English.
func BlockMessage(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	_, idx, _ := blockMatcher.Match(tag)
	p := message.NewPrinter(blockLanguages[idx], message.Catalog(blockCatalog))
	return p.Sprintf(blockMessageKey)
}

// blockedResponse builds the synthetic 403 returned for blocked requests.
// It carries exactly four headers: Pragma, Cache-Control, Content-Type and
// Content-Length. The nil Date entry keeps net/http from adding its own.
func blockedResponse(req *http.Request, body []byte) *http.Response {
	h := make(http.Header, 5)
	h.Set("Pragma", "no-cache")
	h.Set("Cache-Control", "no-cache")
	h.Set("Content-Type", "text/plain; charset=UTF-8")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h["Date"] = nil
	return newResponse(req, http.StatusForbidden, h, body)
}

// textResponse builds a plain-text response produced by the proxy itself.
func textResponse(req *http.Request, status int, msg string) *http.Response {
	h := make(http.Header, 1)
	h.Set("Content-Type", "text/plain; charset=UTF-8")
	return newResponse(req, status, h, []byte(msg))
}

func newResponse(req *http.Request, status int, h http.Header, body []byte) *http.Response {
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// sentHeader returns the headers of a proxy-built response as they appear
// on the wire.
func sentHeader(h http.Header) http.Header {
	sent := h.Clone()
	for k, v := range sent {
		if v == nil {
			delete(sent, k)
		}
	}
	return sent
}
