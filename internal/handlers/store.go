package handlers

import (
	"errors"
	"os"

	"github.com/GavinStein1/pod2chat/internal/storage"
	"github.com/GavinStein1/pod2chat/internal/youtube"
)

var errNotIndexed = errors.New("video has not been indexed")

// openStore resolves a video reference (URL or id) to its chunk store. The
// caller must invoke the returned close function.
func openStore(dataDir, ref string) (videoID string, repo *storage.ChunkRepo, closeFn func(), err error) {
	videoID, err = youtube.ParseVideoID(ref)
	if err != nil {
		return "", nil, nil, err
	}

	path := storage.StorePath(dataDir, videoID)
	if _, statErr := os.Stat(path); statErr != nil {
		return videoID, nil, nil, errNotIndexed
	}

	db, err := storage.Open(path)
	if err != nil {
		return videoID, nil, nil, err
	}
	return videoID, storage.NewChunkRepo(db), func() { db.Close() }, nil
}
