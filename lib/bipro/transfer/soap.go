package transfer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/beevik/etree"
	"github.com/gravitational/trace"
)

const soapNS = "http://schemas.xmlsoap.org/soap/envelope/"
const transferNS = "http://bipro.net/namespace/transfer"

func newEnvelope() (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	envelope := doc.CreateElement("soap:Envelope")
	envelope.CreateAttr("xmlns:soap", soapNS)
	envelope.CreateAttr("xmlns:transfer", transferNS)
	envelope.CreateElement("soap:Header")
	body := envelope.CreateElement("soap:Body")
	return doc, body
}

func serialize(doc *etree.Document) []byte {
	doc.Indent(0)
	b, _ := doc.WriteToBytes()
	return b
}

func buildListRequest(filter ListFilter, continuation string) []byte {
	doc, body := newEnvelope()
	req := body.CreateElement("transfer:listShipments")
	req.CreateElement("confirmed").SetText(fmt.Sprintf("%t", filter.Confirmed))
	if filter.CategoryPrefix != "" {
		req.CreateElement("categoryPrefix").SetText(filter.CategoryPrefix)
	}
	if !filter.From.IsZero() {
		req.CreateElement("from").SetText(filter.From.Format("2006-01-02"))
	}
	if !filter.To.IsZero() {
		req.CreateElement("to").SetText(filter.To.Format("2006-01-02"))
	}
	if continuation != "" {
		req.CreateElement("continuation").SetText(continuation)
	}
	return serialize(doc)
}

func buildGetRequest(shipmentID string) []byte {
	doc, body := newEnvelope()
	req := body.CreateElement("transfer:getShipment")
	req.CreateElement("id").SetText(shipmentID)
	return serialize(doc)
}

func buildAckRequest(shipmentID string) []byte {
	doc, body := newEnvelope()
	req := body.CreateElement("transfer:acknowledgeShipment")
	req.CreateElement("id").SetText(shipmentID)
	return serialize(doc)
}

// postSOAP sends body and returns the raw *http.Response, leaving non-2xx
// status to the caller for classification. It is the same call as
// postSOAPRaw, which Get uses directly.
func (c *Client) postSOAP(ctx context.Context, body []byte) (*http.Response, error) {
	return c.postSOAPRaw(ctx, body)
}

func (c *Client) postSOAPRaw(ctx context.Context, body []byte) (*http.Response, error) {
	tok, err := c.Tokens.BearerToken(ctx)
	if err != nil {
		return nil, NewAuthError("fetching bearer token", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+string(tok))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewCancelled("request cancelled", ctx.Err())
		}
		return nil, NewTransient("transport error calling TransferService", err)
	}
	return resp, nil
}
