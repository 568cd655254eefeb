package utils

import (
	"encoding/json"

	"github.com/juju/errors"
)

// Serialize encodes o as the JSON payload kept in a store.
func Serialize(o any) ([]byte, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, errors.Annotatef(err, "serialize %T", o)
	}
	return b, nil
}

// Unserialize decodes a payload written by Serialize into o.
func Unserialize(b []byte, o any) error {
	if len(b) == 0 {
		return errors.NotValidf("empty payload for %T", o)
	}
	if err := json.Unmarshal(b, o); err != nil {
		return errors.Annotatef(err, "unserialize %T", o)
	}
	return nil
}
