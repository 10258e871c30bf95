package codec

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/loro-go/loro/internal/oplog"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// encodeOpContent returns the JSON envelope for a single op's variable-
// shaped content (spec.md's closed sum type, encoded generically rather
// than with a bespoke tag per OpKind — see package doc).
func encodeOpContent(c oplog.OpContent) ([]byte, error) {
	b, err := jsonAPI.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "codec: marshal op content")
	}
	return b, nil
}

func decodeOpContent(b []byte) (oplog.OpContent, error) {
	var c oplog.OpContent
	if err := jsonAPI.Unmarshal(b, &c); err != nil {
		return oplog.OpContent{}, errors.Wrap(err, "codec: unmarshal op content")
	}
	return c, nil
}
