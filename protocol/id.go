/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a user or player identifier. The server emits ids as JSON strings,
// as numbers, or as objects carrying an "id" field; all three decode to the
// same string form so ids can be compared with ==.
type ID string

func (id ID) String() string { return string(id) }

func (id ID) IsZero() bool { return id == "" }

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = ""

		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)

		return nil
	case data[0] == '{':
		var obj struct {
			ID ID `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*id = obj.ID

		return nil
	}

	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("%w: id %s", ErrMalformed, data)
	}
	*id = ID(data)

	return nil
}

// PlayerRef identifies one side of a match. game_start may carry either a
// bare id or a profile object.
type PlayerRef struct {
	ID      ID     `json:"id"`
	Login   string `json:"intra_login,omitempty"`
	Picture string `json:"intra_picture,omitempty"`
}

func (p *PlayerRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		type plain PlayerRef

		var v plain
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*p = PlayerRef(v)

		return nil
	}

	*p = PlayerRef{}

	return p.ID.UnmarshalJSON(data)
}
