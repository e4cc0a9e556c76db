package port

import "context"

// DocumentParser converts a PDF report to text and returns the path of the
// parsed output.
type DocumentParser interface {
	Parse(ctx context.Context, pdfPath string) (string, error)
}
