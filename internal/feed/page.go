package feed

import (
	"errors"
	"fmt"
	"net/netip"

	jsoniter "github.com/json-iterator/go"
)

var (
	ErrTransport = errors.New("feed: transport failure")
	ErrDecode    = errors.New("feed: decode failure")
	ErrAPI       = errors.New("feed: api error")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Request describes one page request. Start is the inclusive lower bound of
// the block timestamps; Continue is the token returned by the previous page,
// nil for the first page of a run.
type Request struct {
	Start    string
	Continue *string
}

// Block is one entry of list=blocks. Single-address blocks carry no range.
type Block struct {
	ID         uint64
	Timestamp  string
	Expiry     string
	RangeStart *netip.Addr
	RangeEnd   *netip.Addr
}

// Page is a decoded response. Continue is nil on the last page.
type Page struct {
	Blocks   []Block
	Continue *string
}

type apiResponse struct {
	Continue *apiContinue `json:"continue"`
	Query    *apiQuery    `json:"query"`
	Error    *apiError    `json:"error"`
}

type apiContinue struct {
	BKContinue *string `json:"bkcontinue"`
}

type apiQuery struct {
	Blocks *[]apiBlock `json:"blocks"`
}

// apiBlock keeps required fields as pointers so absent keys can be told apart
// from zero values.
type apiBlock struct {
	ID         *uint64     `json:"id"`
	Timestamp  *string     `json:"timestamp"`
	Expiry     *string     `json:"expiry"`
	RangeStart *netip.Addr `json:"rangestart"`
	RangeEnd   *netip.Addr `json:"rangeend"`
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

// DecodePage parses a list=blocks response body.
func DecodePage(body []byte) (*Page, error) {
	var res apiResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if res.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrAPI, res.Error.Code, res.Error.Info)
	}
	if res.Query == nil || res.Query.Blocks == nil {
		return nil, fmt.Errorf("%w: response has no query.blocks", ErrDecode)
	}

	raw := *res.Query.Blocks
	blocks := make([]Block, 0, len(raw))
	for i, entry := range raw {
		block, err := entry.toBlock()
		if err != nil {
			return nil, fmt.Errorf("%w: block #%d: %v", ErrDecode, i, err)
		}
		blocks = append(blocks, block)
	}

	page := &Page{Blocks: blocks}
	if res.Continue != nil && res.Continue.BKContinue != nil {
		token := *res.Continue.BKContinue
		page.Continue = &token
	}
	return page, nil
}

func (b apiBlock) toBlock() (Block, error) {
	switch {
	case b.ID == nil:
		return Block{}, errors.New("missing id")
	case b.Timestamp == nil:
		return Block{}, fmt.Errorf("id %d: missing timestamp", *b.ID)
	case b.Expiry == nil:
		return Block{}, fmt.Errorf("id %d: missing expiry", *b.ID)
	}
	if err := checkAddress(b.RangeStart); err != nil {
		return Block{}, fmt.Errorf("id %d rangestart: %w", *b.ID, err)
	}
	if err := checkAddress(b.RangeEnd); err != nil {
		return Block{}, fmt.Errorf("id %d rangeend: %w", *b.ID, err)
	}

	return Block{
		ID:         *b.ID,
		Timestamp:  *b.Timestamp,
		Expiry:     *b.Expiry,
		RangeStart: b.RangeStart,
		RangeEnd:   b.RangeEnd,
	}, nil
}

// checkAddress rejects present but empty addresses, which netip decodes to the
// zero Addr without error.
func checkAddress(addr *netip.Addr) error {
	if addr == nil {
		return nil
	}
	if !addr.IsValid() {
		return errors.New("empty address")
	}
	return nil
}
