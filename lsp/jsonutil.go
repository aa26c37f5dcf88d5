package lsp

import "encoding/json"

// unmarshalInto decodes raw into dst, a thin wrapper so feature
// handlers that forward downstream JSON-RPC results don't each import
// encoding/json directly.
func unmarshalInto(raw []byte, dst any) error {
	return json.Unmarshal(raw, dst)
}
