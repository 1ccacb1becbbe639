// Package pickup validates pickup-message responses and derives the set of
// stores offering in-store pickup for the tracked part.
package pickup

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// SchemaError names the field that is missing or has the wrong type.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error at %s: %s", e.Field, e.Reason)
}

// Store is the validated subset of one store entry. Raw keeps the whole
// entry so nothing upstream sends is lost.
type Store struct {
	Name          string
	PickupEnabled bool
	Raw           string
}

// Response is a validated pickup-message document.
type Response struct {
	Part   string
	Stores []Store
	Raw    []byte
}

// Total is the number of stores the upstream returned.
func (r *Response) Total() int { return len(r.Stores) }

// escapePath escapes the gjson path metacharacters in a single key.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FlagPath is the per-store path of the pickup flag tracked for part.
func FlagPath(part string) string {
	return "partsAvailability." + escapePath(part) + ".messageTypes.regular.storeSelectionEnabled"
}

// Validate checks that raw carries the fields this bot consumes and returns
// them typed. Everything else in the document is ignored.
func Validate(raw []byte, part string) (*Response, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &SchemaError{Field: "$", Reason: "document is not valid JSON"}
	}

	stores := gjson.GetBytes(raw, "body.stores")
	if !stores.Exists() {
		return nil, &SchemaError{Field: "body.stores", Reason: "missing"}
	}
	if !stores.IsArray() {
		return nil, &SchemaError{Field: "body.stores", Reason: "expected array, got " + stores.Type.String()}
	}

	flagPath := FlagPath(part)
	resp := &Response{Part: part, Raw: raw}
	for i, entry := range stores.Array() {
		prefix := fmt.Sprintf("body.stores.%d", i)
		if !entry.IsObject() {
			return nil, &SchemaError{Field: prefix, Reason: "expected object, got " + entry.Type.String()}
		}

		name := entry.Get("storeName")
		if name.Type != gjson.String {
			return nil, &SchemaError{Field: prefix + ".storeName", Reason: missingOrType(name, "string")}
		}

		flag := entry.Get(flagPath)
		if flag.Type != gjson.True && flag.Type != gjson.False {
			return nil, &SchemaError{Field: prefix + "." + flagPath, Reason: missingOrType(flag, "bool")}
		}

		resp.Stores = append(resp.Stores, Store{
			Name:          name.String(),
			PickupEnabled: flag.Bool(),
			Raw:           entry.Raw,
		})
	}
	return resp, nil
}

func missingOrType(r gjson.Result, want string) string {
	if !r.Exists() {
		return "missing"
	}
	return "expected " + want + ", got " + r.Type.String()
}
