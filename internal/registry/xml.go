package registry

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

// Namespace of the generated declaration document.
const Namespace = "urn:fr:douane:cbam:declaration:1.0"

type xmlDocument struct {
	XMLName     xml.Name   `xml:"CBAMDeclaration"`
	Xmlns       string     `xml:"xmlns,attr"`
	ID          string     `xml:"DeclarationId"`
	GeneratedAt string     `xml:"GeneratedAt"`
	Declarant   xmlParty   `xml:"Declarant"`
	Period      xmlPeriod  `xml:"ReportingPeriod"`
	Goods       []xmlGoods `xml:"ImportedGoods>Good"`
	Totals      xmlTotals  `xml:"Totals"`
}

type xmlParty struct {
	EORI string `xml:"EORI"`
	Name string `xml:"Name"`
}

type xmlPeriod struct {
	Year    string `xml:"Year"`
	Quarter string `xml:"Quarter"`
}

type xmlGoods struct {
	Line          int           `xml:"line,attr"`
	CNCode        string        `xml:"CNCode"`
	OriginCountry string        `xml:"CountryOfOrigin"`
	NetMass       xmlQuantity   `xml:"NetMass"`
	Direct        xmlQuantity   `xml:"DirectEmbeddedEmissions"`
	Indirect      xmlQuantity   `xml:"IndirectEmbeddedEmissions"`
	Evidence      []xmlEvidence `xml:"SupportingEvidence>Evidence"`
}

type xmlQuantity struct {
	Unit  string `xml:"unit,attr"`
	Value string `xml:",chardata"`
}

type xmlEvidence struct {
	DisplayID   string `xml:"reference,attr"`
	PayloadHash string `xml:"sha256,attr"`
	SealedAt    string `xml:"sealedAt,attr"`
	ID          string `xml:",chardata"`
}

type xmlTotals struct {
	NetMass  xmlQuantity `xml:"NetMass"`
	Direct   xmlQuantity `xml:"DirectEmbeddedEmissions"`
	Indirect xmlQuantity `xml:"IndirectEmbeddedEmissions"`
}

func tonnes(v float64) xmlQuantity {
	return xmlQuantity{Unit: "t", Value: strconv.FormatFloat(v, 'f', 3, 64)}
}

func emissions(v float64) xmlQuantity {
	return xmlQuantity{Unit: "tCO2e", Value: strconv.FormatFloat(v, 'f', 3, 64)}
}

// render produces the declaration XML. records holds every evidence id the
// declaration references.
func render(id uuid.UUID, d *Declaration, records map[uuid.UUID]*domain.EvidenceRecord, at time.Time) ([]byte, error) {
	doc := xmlDocument{
		Xmlns:       Namespace,
		ID:          id.String(),
		GeneratedAt: at.UTC().Format(time.RFC3339),
		Declarant:   xmlParty{EORI: d.EORI, Name: d.DeclarantName},
		Period:      xmlPeriod{Year: d.ReportingPeriod[:4], Quarter: d.ReportingPeriod[4:]},
	}

	var mass, direct, indirect float64
	for i, g := range d.Goods {
		line := xmlGoods{
			Line:          i + 1,
			CNCode:        g.CNCode,
			OriginCountry: g.OriginCountry,
			NetMass:       tonnes(g.NetMassTonnes),
			Direct:        emissions(g.DirectEmissionsTCO2e),
			Indirect:      emissions(g.IndirectEmissionsTCO2e),
		}
		for _, evID := range g.EvidenceIDs {
			rec, ok := records[evID]
			if !ok {
				return nil, fmt.Errorf("registry.render: evidence %s not loaded", evID)
			}
			line.Evidence = append(line.Evidence, xmlEvidence{
				DisplayID:   rec.DisplayID,
				PayloadHash: rec.PayloadHash,
				SealedAt:    rec.AttestedAtUTC.UTC().Format(time.RFC3339),
				ID:          rec.ID.String(),
			})
		}
		doc.Goods = append(doc.Goods, line)

		mass += g.NetMassTonnes
		direct += g.DirectEmissionsTCO2e
		indirect += g.IndirectEmissionsTCO2e
	}
	doc.Totals = xmlTotals{NetMass: tonnes(mass), Direct: emissions(direct), Indirect: emissions(indirect)}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("registry.render: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
