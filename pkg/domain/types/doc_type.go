package types

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// DocType classifies an indexed document
type DocType string

const (
	DocTypeEHR         DocType = "ehr"
	DocTypeLab         DocType = "lab"
	DocTypeMedications DocType = "medications"
	DocTypeMedical     DocType = "medical"
	DocTypeKnowledge   DocType = "knowledge"
	DocTypePDF         DocType = "pdf"
)

// AllDocTypes returns all valid document types
func AllDocTypes() []DocType {
	return []DocType{
		DocTypeEHR,
		DocTypeLab,
		DocTypeMedications,
		DocTypeMedical,
		DocTypeKnowledge,
		DocTypePDF,
	}
}

// IsValid checks if the document type is valid
func (d DocType) IsValid() bool {
	switch d {
	case DocTypeEHR,
		DocTypeLab,
		DocTypeMedications,
		DocTypeMedical,
		DocTypeKnowledge,
		DocTypePDF:
		return true
	default:
		return false
	}
}

// Label returns the upper-case tag used when documents are rendered as context
func (d DocType) Label() string {
	return strings.ToUpper(string(d))
}

// String returns the string representation of the document type
func (d DocType) String() string {
	return string(d)
}

// ParseDocType parses a string into a DocType
func ParseDocType(s string) (DocType, error) {
	d := DocType(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", goerr.New("invalid document type", goerr.V("doc_type", s))
	}
	return d, nil
}
