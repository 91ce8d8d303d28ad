package media

import (
	"errors"
	"os"

	"github.com/dhowden/tag"

	"audiobook-builder/internal/apperr"
	"audiobook-builder/internal/domain"
)

// ReadMetadata reads existing tags and embedded cover art from an
// audio file, used to pre-fill the metadata form.
func ReadMetadata(path string) (domain.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Metadata{}, apperr.Newf(apperr.KindFileValidation, "file not found: %s", path)
		}
		return domain.Metadata{}, apperr.Wrap(apperr.KindIO, "open "+path, err)
	}
	defer f.Close()

	tags, err := tag.ReadFrom(f)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return domain.Metadata{}, nil
		}
		return domain.Metadata{}, apperr.Wrap(apperr.KindMetadata, "read tags from "+path, err)
	}

	meta := domain.Metadata{
		Title:       tags.Title(),
		Author:      tags.Artist(),
		Album:       tags.Album(),
		Narrator:    tags.AlbumArtist(),
		Year:        tags.Year(),
		Genre:       tags.Genre(),
		Description: tags.Comment(),
	}
	if picture := tags.Picture(); picture != nil {
		meta.CoverArt = picture.Data
	}
	return meta, nil
}
