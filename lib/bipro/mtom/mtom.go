// Package mtom parses MTOM/XOP multipart/related SOAP responses (spec
// §4.3): it inlines xop:Include references into the SOAP envelope and
// extracts the documents referenced from the transfer:Nachricht payload.
package mtom

import (
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/gravitational/trace"
)

// Document is a single document carried in a shipment (spec §3.2).
type Document struct {
	Filename    string
	MIMEType    string
	Content     []byte
	MissingPart bool // true when the referenced MTOM part could not be found
}

// Result is the outcome of splitting one MTOM/XOP response.
type Result struct {
	// Envelope is the SOAP envelope with every xop:Include reference
	// replaced by the base64-encoded bytes of its bound part.
	Envelope  []byte
	Documents []Document
}

var cidAngleBrackets = regexp.MustCompile(`^<(.*)>$`)

// normalizeCID strips angle brackets, a leading "cid:" prefix (possibly
// URL-encoded), and decodes percent-escapes, so that a Content-ID header
// value and an xop:Include href can be compared for equality regardless of
// how each was quoted (spec §4.3: "comparison is by stripped cid: prefix").
func normalizeCID(raw string) string {
	s := strings.TrimSpace(raw)
	if m := cidAngleBrackets.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if decoded, err := url.QueryUnescape(s); err == nil {
		s = decoded
	}
	s = strings.TrimPrefix(s, "cid:")
	s = strings.TrimPrefix(s, "CID:")
	return s
}

// Split parses an HTTP response carrying a multipart/related MTOM body.
// Header and part lookup are case-insensitive per spec §4.3.
func Split(contentType string, body io.Reader) (Result, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Result{}, trace.BadParameter("invalid Content-Type: %v", err)
	}
	if !strings.HasPrefix(strings.ToLower(mediaType), "multipart/related") {
		return Result{}, trace.BadParameter("expected multipart/related, got %q", mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return Result{}, trace.BadParameter("multipart/related response missing boundary")
	}
	startCID := normalizeCID(params["start"])

	mr := multipart.NewReader(body, boundary)

	parts := make(map[string][]byte)
	partTypes := make(map[string]string)
	var rootPart []byte
	var rootPartType string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, trace.Wrap(err, "reading MTOM part")
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return Result{}, trace.Wrap(err, "reading MTOM part body")
		}
		cid := normalizeCID(firstHeader(part.Header, "Content-ID"))
		ctype := firstHeader(part.Header, "Content-Type")

		if (startCID != "" && cid == startCID) || (startCID == "" && rootPart == nil) {
			rootPart = data
			rootPartType = ctype
		} else {
			parts[cid] = data
			partTypes[cid] = ctype
		}
	}
	if rootPart == nil {
		return Result{}, trace.BadParameter("MTOM response has no root SOAP part")
	}
	_ = rootPartType

	envelope, docs, err := inline(rootPart, parts)
	if err != nil {
		return Result{}, trace.Wrap(err)
	}
	return Result{Envelope: envelope, Documents: docs}, nil
}

func firstHeader(h map[string][]string, key string) string {
	for k, v := range h {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// documentPath is the location of document elements within the inlined
// envelope, per spec §4.3: transfer:Nachricht/Dokumente/Dokument.
const (
	tagNachricht  = "Nachricht"
	tagDokumente  = "Dokumente"
	tagDokument   = "Dokument"
	tagDateiname  = "Dateiname"
	tagMimeType   = "Mimetype"
	tagInhalt     = "Inhalt"
	tagXOPInclude = "Include"
)

// inline replaces every xop:Include element in root with the raw bytes of
// its bound part (base64-encoded, since the XSD field type is
// base64Binary), and collects Document records from the
// transfer:Nachricht/Dokumente/Dokument path.
func inline(root []byte, parts map[string][]byte) ([]byte, []Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(root); err != nil {
		return nil, nil, trace.Wrap(err, "parsing SOAP envelope")
	}

	var docs []Document
	for _, nachricht := range findByLocalName(&doc.Element, tagNachricht) {
		for _, dokumente := range childrenByLocalName(nachricht, tagDokumente) {
			for _, dokument := range childrenByLocalName(dokumente, tagDokument) {
				docs = append(docs, extractDocument(dokument, parts))
			}
		}
	}

	// Replace every xop:Include anywhere in the tree, independent of the
	// Dokument extraction above (an envelope may carry other base64Binary
	// fields bound via MTOM besides document payloads).
	for _, include := range findByLocalName(&doc.Element, tagXOPInclude) {
		href := include.SelectAttrValue("href", "")
		cid := normalizeCID(href)
		data, ok := parts[cid]
		parent := include.Parent()
		if parent == nil {
			continue
		}
		if !ok {
			continue
		}
		parent.RemoveChild(include)
		parent.SetText(encodeBase64(data))
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, nil, trace.Wrap(err, "serializing inlined envelope")
	}
	return out, docs, nil
}

// findByLocalName returns every descendant of el whose local tag name
// (ignoring any namespace prefix) equals name.
func findByLocalName(el *etree.Element, name string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == name {
			out = append(out, child)
		}
		out = append(out, findByLocalName(child, name)...)
	}
	return out
}

// childrenByLocalName returns the immediate children of el whose local tag
// name equals name.
func childrenByLocalName(el *etree.Element, name string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == name {
			out = append(out, child)
		}
	}
	return out
}

func extractDocument(dokument *etree.Element, parts map[string][]byte) Document {
	d := Document{}
	if el := dokument.SelectElement(tagDateiname); el != nil {
		d.Filename = el.Text()
	}
	if el := dokument.SelectElement(tagMimeType); el != nil {
		d.MIMEType = el.Text()
	}
	if el := dokument.SelectElement(tagInhalt); el != nil {
		if include := el.SelectElement(tagXOPInclude); include != nil {
			cid := normalizeCID(include.SelectAttrValue("href", ""))
			if data, ok := parts[cid]; ok {
				d.Content = data
			} else {
				d.MissingPart = true
			}
		} else if text := strings.TrimSpace(el.Text()); text != "" {
			// Inline (non-MTOM) base64 content.
			if data, err := decodeBase64(text); err == nil {
				d.Content = data
			} else {
				d.MissingPart = true
			}
		} else {
			d.MissingPart = true
		}
	} else {
		d.MissingPart = true
	}
	return d
}

// AnyMissing reports whether any document in the result references a part
// that was not found in the multipart body. The orchestrator must not
// acknowledge a shipment for which this is true (spec §4.3).
func (r Result) AnyMissing() bool {
	for _, d := range r.Documents {
		if d.MissingPart {
			return true
		}
	}
	return false
}

// ContentTypeIsMTOM reports whether an HTTP response's Content-Type header
// describes an XOP-wrapped MTOM multipart body.
func ContentTypeIsMTOM(h http.Header) bool {
	ct := h.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return strings.EqualFold(mediaType, "multipart/related") &&
		strings.Contains(strings.ToLower(params["type"]), "xop+xml")
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
