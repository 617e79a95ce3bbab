package extract

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// RowFunc receives each completed row in document order.
type RowFunc func(cells []string)

// StreamOptions configures a RowStream. RowTag and CellTag default to tr/td.
// When ContainerClass is set, only rows inside an element carrying that class
// are considered.
type StreamOptions struct {
	ContainerClass string
	RowTag         string
	CellTag        string
	CellCount      int
}

// RowStream is the incremental variant of Rows for memory-bounding large
// responses. It is fed chunks of bytes via Write, buffers the row in
// progress, and invokes the row callback exactly when the row's closing tag
// is observed. Close flushes nothing extra: a row whose closing tag never
// arrived is discarded. A RowStream is consumed once and must be closed on
// every exit path.
type RowStream struct {
	pw   *io.PipeWriter
	done chan struct{}
	err  error
}

// NewRowStream starts the tokenizer goroutine and returns the stream.
func NewRowStream(opts StreamOptions, fn RowFunc) *RowStream {
	if opts.RowTag == "" {
		opts.RowTag = "tr"
	}
	if opts.CellTag == "" {
		opts.CellTag = "td"
	}
	pr, pw := io.Pipe()
	s := &RowStream{pw: pw, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		s.err = scanRows(pr, opts, fn)
		// Drain whatever the writer still has so Write never wedges after a
		// tokenizer error.
		_, _ = io.Copy(io.Discard, pr)
	}()
	return s
}

// Write feeds the next chunk of the HTML byte stream.
func (s *RowStream) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

// Close signals end-of-stream, waits for the tokenizer to finish, and
// returns its error, if any.
func (s *RowStream) Close() error {
	_ = s.pw.Close()
	<-s.done
	return s.err
}

func scanRows(r io.Reader, opts StreamOptions, fn RowFunc) error {
	z := html.NewTokenizer(r)

	inContainer := opts.ContainerClass == ""
	containerTag := ""
	containerDepth := 0
	inRow := false
	inCell := false
	var cells []string
	var cellBuf strings.Builder

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return err
			}
			// End of stream: any row still open is incomplete and dropped.
			return nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, class := tagNameAndClass(z)
			if !inContainer {
				if tt == html.StartTagToken && hasClassWord(class, opts.ContainerClass) {
					inContainer = true
					containerTag = name
					containerDepth = 1
				}
				continue
			}
			if tt == html.StartTagToken && containerTag != "" && name == containerTag {
				containerDepth++
			}
			switch name {
			case opts.RowTag:
				inRow = true
				inCell = false
				cells = cells[:0]
			case opts.CellTag:
				if inRow {
					inCell = true
					cellBuf.Reset()
				}
			}

		case html.TextToken:
			if inCell {
				cellBuf.Write(z.Text())
			}

		case html.EndTagToken:
			name, _ := tagNameAndClass(z)
			if !inContainer {
				continue
			}
			if containerTag != "" && name == containerTag {
				containerDepth--
				if containerDepth == 0 {
					inContainer = false
					inRow = false
					inCell = false
				}
				continue
			}
			switch name {
			case opts.CellTag:
				if inCell {
					cells = append(cells, strings.TrimSpace(cellBuf.String()))
					inCell = false
				}
			case opts.RowTag:
				if inRow && len(cells) == opts.CellCount {
					fn(append([]string(nil), cells...))
				}
				inRow = false
				cells = cells[:0]
			}
		}
	}
}

func tagNameAndClass(z *html.Tokenizer) (string, string) {
	nameBytes, hasAttr := z.TagName()
	name := string(nameBytes)
	class := ""
	for hasAttr {
		k, v, more := z.TagAttr()
		if string(k) == "class" {
			class = string(v)
		}
		hasAttr = more
	}
	return name, class
}

func hasClassWord(classAttr, want string) bool {
	for _, w := range strings.Fields(classAttr) {
		if w == want {
			return true
		}
	}
	return false
}
