package soap

import (
	"encoding/xml"
	"strings"
)

// Namespaces of the CDC IIS web service
const (
	NamespaceEnvelope = "http://www.w3.org/2003/05/soap-envelope"
	NamespaceIIS      = "urn:cdc:iisb:2011"
)

type requestEnvelope struct {
	XMLName xml.Name    `xml:"soap:Envelope"`
	Soap    string      `xml:"xmlns:soap,attr"`
	IIS     string      `xml:"xmlns:urn,attr"`
	Header  struct{}    `xml:"soap:Header"`
	Body    requestBody `xml:"soap:Body"`
}

type requestBody struct {
	Content any
}

type submitSingleMessageRequest struct {
	XMLName    xml.Name `xml:"urn:submitSingleMessage"`
	Username   string   `xml:"urn:username"`
	Password   string   `xml:"urn:password"`
	FacilityID string   `xml:"urn:facilityID"`
	HL7Message string   `xml:"urn:hl7Message"`
}

type connectivityTestRequest struct {
	XMLName  xml.Name `xml:"urn:connectivityTest"`
	EchoBack string   `xml:"urn:echoBack"`
}

// responseEnvelope matches any operation response; only <return> and <Fault> matter
type responseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault    *fault `xml:"Fault"`
		Response struct {
			Return string `xml:"return"`
		} `xml:",any"`
	} `xml:"Body"`
}

type fault struct {
	Code struct {
		Value   string `xml:"Value"`
		Subcode struct {
			Value string `xml:"Value"`
		} `xml:"Subcode"`
	} `xml:"Code"`
	Reason struct {
		Text string `xml:"Text"`
	} `xml:"Reason"`
	Detail struct {
		Inner []byte `xml:",innerxml"`
	} `xml:"Detail"`
}

func (f *fault) toError() *FaultError {
	return &FaultError{
		Code:    f.Code.Value,
		Subcode: f.Code.Subcode.Value,
		Reason:  strings.TrimSpace(f.Reason.Text),
		Detail:  strings.TrimSpace(string(f.Detail.Inner)),
	}
}

func newEnvelope(content any) requestEnvelope {
	return requestEnvelope{
		Soap: NamespaceEnvelope,
		IIS:  NamespaceIIS,
		Body: requestBody{Content: content},
	}
}
