package classifier

import (
	"io"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/moyu-x/file-organizer/internal"
)

// Sniffer classifies files by content when the name says nothing useful.
type Sniffer struct {
	fs    afero.Fs
	rules *RuleSet
	log   zerolog.Logger
}

func NewSniffer(fs afero.Fs, rules *RuleSet, log zerolog.Logger) *Sniffer {
	return &Sniffer{fs: fs, rules: rules, log: log}
}

// Sniff detects the file type from its header. The detected extension is
// looked up in the rule set first so user categories keep working; the MIME
// family is the fallback.
func (s *Sniffer) Sniff(path string) string {
	head, err := s.readHead(path)
	if err != nil {
		s.log.Debug().Err(err).Str("file", path).Msg("content sniff failed")
		return internal.FallbackCategory
	}

	kind, err := filetype.Match(head)
	if err != nil || kind == types.Unknown {
		return internal.FallbackCategory
	}

	if cat, ok := s.rules.Lookup(kind.Extension); ok {
		return cat
	}

	switch kind.MIME.Type {
	case "image":
		return "Images"
	case "video":
		return "Videos"
	case "audio":
		return "Audio"
	}
	switch {
	case filetype.IsArchive(head):
		return "Archives"
	case filetype.IsDocument(head):
		return "Documents"
	}
	return internal.FallbackCategory
}

func (s *Sniffer) readHead(path string) ([]byte, error) {
	file, err := s.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buffer := make([]byte, internal.SniffBufferSize)
	n, err := io.ReadFull(file, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buffer[:n], nil
}
