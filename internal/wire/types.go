// internal/wire/types.go
package wire

// ElementID identifies a DOM element held by the remote end. It is
// only meaningful within the session that produced it.
type ElementID string

// w3cElementKey is the reserved JSON key under which the protocol
// returns an element reference.
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// Locator strategies defined by the protocol.
const (
	ByCSS             = "css selector"
	ByXPath           = "xpath"
	ByLinkText        = "link text"
	ByPartialLinkText = "partial link text"
	ByTagName         = "tag name"
)
