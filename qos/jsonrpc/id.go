package jsonrpc

import (
	"bytes"
	"encoding/json"
	"strconv"
	"sync/atomic"
)

// ID is a JSONRPC request/response identifier.
//
// JSON-RPC ID requirements:
// - Must be a String, Number, or NULL if included
// - Numbers should not contain fractional parts
// - Server must reply with the same value in the Response object
//
// The zero value is the null ID. An empty string ID is treated as null.
// See the following link for more details:
// https://www.jsonrpc.org/specification
type ID struct {
	intID *int
	strID string
}

// idCounter backs NextID; IDs only need to be unique per in-flight request.
var idCounter atomic.Int64

// NextID returns a process-wide unique integer ID.
func NextID() ID {
	return IDFromInt(int(idCounter.Add(1)))
}

func IDFromInt(id int) ID {
	return ID{intID: &id}
}

func IDFromStr(id string) ID {
	return ID{strID: id}
}

// IsNull returns true for the null ID.
func (id ID) IsNull() bool {
	return id.intID == nil && id.strID == ""
}

// String returns ID as a string.
// A null ID is returned as "null".
func (id ID) String() string {
	switch {
	case id.intID != nil:
		return strconv.Itoa(*id.intID)
	case id.strID != "":
		return id.strID
	default:
		return "null"
	}
}

// Equal compares IDs by value and type: the integer 1 and the string "1" differ.
func (id ID) Equal(other ID) bool {
	if id.IsNull() || other.IsNull() {
		return id.IsNull() && other.IsNull()
	}
	if (id.intID == nil) != (other.intID == nil) {
		return false
	}
	if id.intID != nil {
		return *id.intID == *other.intID
	}
	return id.strID == other.strID
}

func (id ID) MarshalJSON() ([]byte, error) {
	switch {
	case id.intID != nil:
		return []byte(strconv.Itoa(*id.intID)), nil
	case id.strID != "":
		return json.Marshal(id.strID)
	default:
		return []byte("null"), nil
	}
}

func (id *ID) UnmarshalJSON(data []byte) error {
	*id = ID{}

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var intID int
	if err := json.Unmarshal(data, &intID); err == nil {
		id.intID = &intID
		return nil
	}

	return json.Unmarshal(data, &id.strID)
}
