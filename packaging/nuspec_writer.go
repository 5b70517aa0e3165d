package packaging

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// EncodeNuspec serializes a manifest back to XML.
func EncodeNuspec(n *Nuspec) ([]byte, error) {
	if n.Xmlns == "" {
		n.Xmlns = NuspecNamespaceV6
	}

	var buf strings.Builder
	buf.WriteString(xml.Header)

	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")

	if err := encoder.Encode(n); err != nil {
		return nil, fmt.Errorf("encode nuspec: %w", err)
	}

	return []byte(buf.String()), nil
}
