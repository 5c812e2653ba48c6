// Package viacep is an HTTP client for the ViaCEP postal code lookup contract.
package viacep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/justgu1/cepapi/internal/errs"
	"github.com/justgu1/cepapi/internal/model"
)

const maxBody = 64 << 10

// Field is a nullable scalar from the provider payload. It accepts JSON strings,
// numbers and null; anything else fails decoding.
type Field struct {
	Value *string
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Field) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		f.Value = nil
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f.Value = &s
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("viacep: unsupported field value %s", b)
		}
		s := n.String()
		f.Value = &s
		return nil
	}
}

// Payload is the provider response restricted to the known vocabulary.
// Keys outside it are dropped during decoding.
type Payload struct {
	Cep          Field           `json:"cep"`
	Street       Field           `json:"logradouro"`
	Complement   Field           `json:"complemento"`
	Unit         Field           `json:"unidade"`
	Neighborhood Field           `json:"bairro"`
	Locality     Field           `json:"localidade"`
	RegionCode   Field           `json:"uf"`
	RegionName   Field           `json:"estado"`
	MacroRegion  Field           `json:"regiao"`
	IBGE         Field           `json:"ibge"`
	GIA          Field           `json:"gia"`
	AreaCode     Field           `json:"ddd"`
	SIAFI        Field           `json:"siafi"`
	Erro         json.RawMessage `json:"erro"`
}

// NotFound reports the provider's "erro" marker (true or "true").
func (p *Payload) NotFound() bool {
	v := strings.Trim(strings.TrimSpace(string(p.Erro)), `"`)
	return strings.EqualFold(v, "true")
}

// Empty reports whether the payload carries neither cep nor any address field.
func (p *Payload) Empty() bool {
	for _, f := range []Field{
		p.Cep, p.Street, p.Complement, p.Unit, p.Neighborhood, p.Locality, p.RegionCode,
		p.RegionName, p.MacroRegion, p.IBGE, p.GIA, p.AreaCode, p.SIAFI,
	} {
		if f.Value != nil {
			return false
		}
	}
	return true
}

// Attributes projects the payload onto the fixed record vocabulary.
func (p *Payload) Attributes() model.Attributes {
	return model.Attributes{
		Street:       p.Street.Value,
		Complement:   p.Complement.Value,
		Unit:         p.Unit.Value,
		Neighborhood: p.Neighborhood.Value,
		Locality:     p.Locality.Value,
		RegionCode:   p.RegionCode.Value,
		RegionName:   p.RegionName.Value,
		MacroRegion:  p.MacroRegion.Value,
		IBGE:         p.IBGE.Value,
		GIA:          p.GIA.Value,
		AreaCode:     p.AreaCode.Value,
		SIAFI:        p.SIAFI.Value,
	}
}

// Client fetches postal codes from a ViaCEP-compatible base URL.
type Client struct {
	base string
	http *http.Client
}

// New constructs a client for base (e.g. https://viacep.com.br). timeout <= 0 means 10s.
func New(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// NewWithHTTPClient constructs a client with a caller-provided *http.Client.
func NewWithHTTPClient(base string, hc *http.Client) *Client {
	return &Client{base: strings.TrimRight(base, "/"), http: hc}
}

// Fetch requests {base}/ws/{digits}/json/. Any non-2xx status, transport failure,
// body that is not a JSON object, provider "erro" marker or payload without a single
// known field is reported as errs.ErrLookupFailed.
// A cancelled caller context is returned unchanged.
func (c *Client) Fetch(ctx context.Context, digits string) (*Payload, error) {
	u := c.base + "/ws/" + url.PathEscape(digits) + "/json/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", errs.ErrLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, fmt.Errorf("%w: status %d", errs.ErrLookupFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: read: %v", errs.ErrLookupFailed, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, fmt.Errorf("%w: body is not a JSON object", errs.ErrLookupFailed)
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", errs.ErrLookupFailed, err)
	}
	if p.NotFound() {
		return nil, fmt.Errorf("%w: %s not found", errs.ErrLookupFailed, digits)
	}
	if p.Empty() {
		return nil, fmt.Errorf("%w: %s: no known fields in response", errs.ErrLookupFailed, digits)
	}
	return &p, nil
}
