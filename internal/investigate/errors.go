package investigate

import "errors"

var (
	ErrHostNotAllowed      = errors.New("investigate: target host not allowed")
	ErrCloneFailed         = errors.New("investigate: git clone failed")
	ErrLocalNotAllowed     = errors.New("investigate: local targets disabled")
	ErrDocumentMissing     = errors.New("investigate: document not found")
	ErrUnsupportedDocument = errors.New("investigate: unsupported document type")
	ErrEmptyDocument       = errors.New("investigate: document has no text")
)
