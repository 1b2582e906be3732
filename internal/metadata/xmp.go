package metadata

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	xmpHeader         = "http://ns.adobe.com/xap/1.0/\x00"
	xmpExtendedHeader = "http://ns.adobe.com/xmp/extension/\x00"
)

// xmpFields is the subset of an XMP packet darkroom reads.
type xmpFields struct {
	Description string
	Keywords    []string
	Creators    []string
	Rating      *int
	CreateDate  string
	Payload     string
}

type rdfRoot struct {
	Descriptions []rdfDescription `xml:"Description"`
}

type rdfDescription struct {
	Description    []string `xml:"description>Alt>li"`
	Subject        []string `xml:"subject>Bag>li"`
	Creator        []string `xml:"creator>Seq>li"`
	UserComment    []string `xml:"UserComment>Alt>li"`
	RatingElem     string   `xml:"Rating"`
	RatingAttr     string   `xml:"Rating,attr"`
	CreateDateElem string   `xml:"CreateDate"`
	CreateDateAttr string   `xml:"CreateDate,attr"`
	DateCreated    string   `xml:"DateCreated"`
}

var errNoRDF = errors.New("xmp packet has no rdf:RDF element")

// parseXMP decodes an XMP packet, tolerating the xpacket wrapper and either an
// x:xmpmeta or a bare rdf:RDF root. Multiple rdf:Description blocks merge.
func parseXMP(packet []byte) (xmpFields, error) {
	var fields xmpFields
	dec := xml.NewDecoder(bytes.NewReader(packet))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return fields, errNoRDF
		}
		if err != nil {
			return fields, fmt.Errorf("scan xmp: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "RDF" {
			continue
		}
		var root rdfRoot
		if err := dec.DecodeElement(&root, &start); err != nil {
			return fields, fmt.Errorf("decode rdf: %w", err)
		}
		for _, desc := range root.Descriptions {
			mergeDescription(&fields, desc)
		}
		return fields, nil
	}
}

func mergeDescription(fields *xmpFields, desc rdfDescription) {
	if fields.Description == "" && len(desc.Description) > 0 {
		fields.Description = desc.Description[0]
	}
	if len(fields.Keywords) == 0 && len(desc.Subject) > 0 {
		fields.Keywords = append([]string(nil), desc.Subject...)
	}
	if len(fields.Creators) == 0 && len(desc.Creator) > 0 {
		fields.Creators = append([]string(nil), desc.Creator...)
	}
	if fields.Payload == "" && len(desc.UserComment) > 0 {
		fields.Payload = desc.UserComment[0]
	}
	if fields.Rating == nil {
		if raw := firstNonEmpty(desc.RatingElem, desc.RatingAttr); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v >= 0 && v <= 5 {
				fields.Rating = intPtr(v)
			}
		}
	}
	if fields.CreateDate == "" {
		fields.CreateDate = firstNonEmpty(desc.CreateDateElem, desc.CreateDateAttr, desc.DateCreated)
	}
}

// payload decodes the JSON carried in exif:UserComment. ok is false when the
// packet was not written by darkroom.
func (f xmpFields) payload() (Payload, bool) {
	if strings.TrimSpace(f.Payload) == "" {
		return Payload{}, false
	}
	var p Payload
	if err := json.Unmarshal([]byte(f.Payload), &p); err != nil || p.AssetID == "" {
		return Payload{}, false
	}
	return p, true
}

// buildXMP renders the payload as an XMP packet. dc:creator carries the
// identified people; exif:UserComment carries the full payload as JSON.
func buildXMP(p Payload) ([]byte, error) {
	payloadJSON, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	var b strings.Builder
	b.WriteString("<?xpacket begin=\"\ufeff\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>\n")
	b.WriteString(`<x:xmpmeta xmlns:x="adobe:ns:meta/" x:xmptk="darkroom">` + "\n")
	b.WriteString(` <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">` + "\n")
	b.WriteString(`  <rdf:Description rdf:about=""` +
		` xmlns:dc="http://purl.org/dc/elements/1.1/"` +
		` xmlns:xmp="http://ns.adobe.com/xap/1.0/"` +
		` xmlns:exif="http://ns.adobe.com/exif/1.0/">` + "\n")

	fmt.Fprintf(&b, "   <xmp:Rating>%d</xmp:Rating>\n", p.Rating)
	if p.CapturedAt != nil && !p.CapturedAt.IsZero() {
		fmt.Fprintf(&b, "   <xmp:CreateDate>%s</xmp:CreateDate>\n", p.CapturedAt.Format(time.RFC3339))
	}
	if p.Description != "" {
		b.WriteString("   <dc:description><rdf:Alt><rdf:li xml:lang=\"x-default\">")
		writeEscaped(&b, p.Description)
		b.WriteString("</rdf:li></rdf:Alt></dc:description>\n")
	}
	writeList(&b, "dc:subject", "rdf:Bag", p.Keywords)
	writeList(&b, "dc:creator", "rdf:Seq", p.People)
	b.WriteString("   <exif:UserComment><rdf:Alt><rdf:li xml:lang=\"x-default\">")
	writeEscaped(&b, string(payloadJSON))
	b.WriteString("</rdf:li></rdf:Alt></exif:UserComment>\n")

	b.WriteString("  </rdf:Description>\n")
	b.WriteString(" </rdf:RDF>\n")
	b.WriteString("</x:xmpmeta>\n")
	b.WriteString(`<?xpacket end="w"?>`)
	return []byte(b.String()), nil
}

func writeList(b *strings.Builder, element, container string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "   <%s><%s>", element, container)
	for _, v := range values {
		b.WriteString("<rdf:li>")
		writeEscaped(b, v)
		b.WriteString("</rdf:li>")
	}
	fmt.Fprintf(b, "</%s></%s>\n", container, element)
}

func writeEscaped(b *strings.Builder, value string) {
	_ = xml.EscapeText(b, []byte(value))
}
