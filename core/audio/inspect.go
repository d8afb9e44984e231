package audio

import (
	"bytes"
	"errors"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/gabriel-vasile/mimetype"
)

// ErrNotAudio is returned for uploads whose content is not an audio format.
var ErrNotAudio = errors.New("file is not an audio track")

// Info is what we learn about an uploaded file before pricing it.
type Info struct {
	MIME   string
	Ext    string
	Title  string
	Artist string
	Genre  string
}

// Inspect sniffs the content type of data and, for MPEG audio, reads the ID3
// tags. The declared file name is only used as a title fallback; the
// extension a client sends is never trusted.
func Inspect(fileName string, data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, ErrNotAudio
	}

	mt := mimetype.Detect(data)
	if !isAudio(mt) {
		return Info{}, ErrNotAudio
	}

	info := Info{
		MIME:  mt.String(),
		Ext:   mt.Extension(),
		Title: titleFromName(fileName),
	}

	if mt.Is("audio/mpeg") {
		readTags(data, &info)
	}
	return info, nil
}

// isAudio walks the mimetype hierarchy so containers detected as a more
// specific subtype still count.
func isAudio(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			return true
		}
	}
	return false
}

func readTags(data []byte, info *Info) {
	tag, err := id3v2.ParseReader(bytes.NewReader(data), id3v2.Options{Parse: true})
	if err != nil {
		return // tagless or damaged headers are fine
	}
	defer tag.Close()

	if t := strings.TrimSpace(tag.Title()); t != "" {
		info.Title = t
	}
	info.Artist = strings.TrimSpace(tag.Artist())
	info.Genre = cleanGenre(tag.Genre())
}

// cleanGenre drops ID3v1-style numeric references such as "(13)" or "(13)Pop".
func cleanGenre(g string) string {
	g = strings.TrimSpace(g)
	if strings.HasPrefix(g, "(") {
		if i := strings.Index(g, ")"); i != -1 {
			g = strings.TrimSpace(g[i+1:])
		}
	}
	return g
}

func titleFromName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i != -1 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	if name == "" {
		return "Untitled"
	}
	return name
}
