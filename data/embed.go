package data

import (
	"embed"
	"io/fs"
)

// VideosFile and DetailsFile name the bundled fixture files.
const (
	VideosFile  = "videos.json"
	DetailsFile = "video-details.json"
)

//go:embed videos.json video-details.json
var fixtureFiles embed.FS

// Fixtures returns a filesystem holding the bundled seed data.
func Fixtures() fs.FS {
	return fixtureFiles
}
