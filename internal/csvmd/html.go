package csvmd

import (
	"fmt"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// RenderHTML converts Markdown produced by Render into an HTML table.
func RenderHTML(w io.Writer, markdown []byte) error {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := md.Convert(markdown, w); err != nil {
		return fmt.Errorf("markdown convert: %w", err)
	}
	return nil
}
