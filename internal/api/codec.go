package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/shopspring/decimal"
)

var errMalformedBody = errors.New("malformed JSON body")

// Amount is a money value on the wire: a JSON integer or a string holding a
// decimal integer, in minor units. Fractions and exponents are refused so a
// float never reaches the ledger.
type Amount domain.Amount

func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		s, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrInvalidAmount, raw)
		}
		raw = strings.TrimSpace(s)
	}
	v, err := parseAmount(raw)
	if err != nil {
		return err
	}
	*a = Amount(v)
	return nil
}

func parseAmount(raw string) (domain.Amount, error) {
	if raw == "" || strings.ContainsAny(raw, ".eE") {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, raw)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, raw)
	}
	n := d.IntPart()
	if !d.Equal(decimal.NewFromInt(n)) {
		return 0, fmt.Errorf("%w: %q out of range", domain.ErrInvalidAmount, raw)
	}
	return domain.Amount(n), nil
}

// decodeJSON reads the request body into dst. Amount errors keep their
// domain error so they map to 422; anything else is a malformed body.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errMalformedBody
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			return err
		}
		return errMalformedBody
	}
	return nil
}
