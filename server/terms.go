package server

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// termList decodes a document's terms field as either a JSON array of
// numbers (`"terms":[1,2,3]`) or a comma-separated string
// (`"terms":"1,2,3"`), per spec §6's `PUT /<idx>/_doc/<id>`.
type termList []uint32

func (t *termList) UnmarshalJSON(data []byte) error {
	var asArray []uint32
	if err := json.Unmarshal(data, &asArray); err == nil {
		*t = asArray
		return nil
	}

	var asString string
	if err := json.Unmarshal(data, &asString); err != nil {
		return errors.New("terms must be a JSON array of integers or a comma-separated string")
	}
	terms, err := parseTermsParam(asString)
	if err != nil {
		return err
	}
	*t = terms
	return nil
}

// parseTermsParam parses a comma-separated list of terms, as used by both
// the string form of `terms` and the `_search` endpoint's `query` param.
// An empty string yields an empty (not nil-but-error) list.
func parseTermsParam(s string) ([]uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid term %q", p)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}
